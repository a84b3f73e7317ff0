package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// ScriptHost abstracts the embedded browser-engine context the compiler runs
// in. The production implementation drives a headless Chromium page; tests
// substitute a fake.
type ScriptHost interface {
	// Start provisions the sandbox page.
	Start(ctx context.Context) error
	// EvalBool evaluates an expression and returns its boolean value.
	EvalBool(js string) (bool, error)
	// Run evaluates a script for its side effects.
	Run(js string) error
	// OnResult registers the host-side callback the sandbox posts build
	// results to. The payload is the JSON-encoded result object.
	OnResult(fn func(payload []byte)) error
	// Close tears the sandbox down.
	Close() error
}

// resultCallbackName is the function the bootstrap script calls with the
// JSON-encoded build result.
const resultCallbackName = "__sceneforgeDone"

type rodHost struct {
	browser *rod.Browser
	page    *rod.Page
	stop    func() error
}

func newRodHost() *rodHost {
	return &rodHost{}
}

func (h *rodHost) Start(ctx context.Context) error {
	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return fmt.Errorf("launching sandbox browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connecting to sandbox browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("opening sandbox page: %w", err)
	}

	h.browser = browser
	h.page = page
	return nil
}

func (h *rodHost) EvalBool(js string) (bool, error) {
	obj, err := h.page.Eval(js)
	if err != nil {
		return false, err
	}
	return obj.Value.Bool(), nil
}

func (h *rodHost) Run(js string) error {
	_, err := h.page.Eval(js)
	return err
}

func (h *rodHost) OnResult(fn func(payload []byte)) error {
	stop, err := h.page.Expose(resultCallbackName, func(g gson.JSON) (interface{}, error) {
		// The sandbox passes a single JSON string argument.
		fn([]byte(g.Str()))
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("exposing result callback: %w", err)
	}
	h.stop = stop
	return nil
}

func (h *rodHost) Close() error {
	if h.stop != nil {
		_ = h.stop()
	}
	if h.browser != nil {
		return h.browser.Close()
	}
	return nil
}

// mustJSON marshals v for embedding into the bootstrap script.
func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
