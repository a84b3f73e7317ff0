package cmd

import (
	"os"

	"sceneforge/internal/analyzer"
	"sceneforge/internal/backend"
	"sceneforge/internal/backend/sandbox"
	"sceneforge/internal/backend/worker"
	"sceneforge/internal/config"
	"sceneforge/internal/logging"
	"sceneforge/internal/manager"
)

// session is one fully wired build subsystem. Everything is constructed per
// invocation and passed explicitly; no package-level managers.
type session struct {
	cfg     *config.Config
	logger  logging.Logger
	factory *backend.Factory
	manager *manager.BuildManager
}

// newSession loads configuration and wires the factory, analyzer and build
// manager together.
func newSession() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: "text",
		Output: os.Stderr,
	})

	newSandbox := func() backend.Backend {
		return sandbox.New(cfg.Sandbox, cfg.VendorAliases, logger)
	}
	newWorker := func() backend.Backend {
		return worker.New(cfg.Worker, logger)
	}
	// "sandbox" preference disables the native probe entirely; "auto" and
	// "worker" both probe and use the native worker once it reports ready.
	if cfg.Backend.Prefer == "sandbox" {
		newWorker = nil
	}

	factory := backend.NewFactory(logger, newSandbox, newWorker)
	mgr := manager.New(factory, analyzer.New(), logger)

	return &session{
		cfg:     cfg,
		logger:  logger,
		factory: factory,
		manager: mgr,
	}, nil
}
