package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sceneforge/internal/hotreload"
	"sceneforge/internal/types"
	"sceneforge/internal/watcher"
)

var watchFramework string

// watchCmd rebuilds a scene whenever its source changes on disk.
var watchCmd = &cobra.Command{
	Use:     "watch [path]",
	Aliases: []string{"w"},
	Short:   "Rebuild automatically when scene source changes",
	Args:    cobra.ExactArgs(1),
	RunE:    runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchFramework, "framework", "f", "react-three-fiber",
		"scene framework (aframe, three, react-three-fiber, babylon)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	framework, err := types.ParseFramework(watchFramework)
	if err != nil {
		return err
	}

	sess, err := newSession()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := hotreload.New(sess.cfg.HotReloadRuntime(), sess.manager.BuildCode, sess.logger)
	scheduler.OnResult(func(result types.BuildResult) {
		if result.Success {
			fmt.Fprintf(os.Stderr, "reloaded: %d bytes in %dms\n", result.Bytes, result.DurationMs)
		} else {
			fmt.Fprintf(os.Stderr, "reload failed: %s\n", result.FirstError())
		}
	})
	defer scheduler.Stop()

	if err := startWatcher(ctx, sess, scheduler, args[0], framework); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "watching %s (framework: %s)\n", args[0], framework)
	<-ctx.Done()
	return nil
}

// startWatcher wires a source watcher into the hot-reload scheduler.
func startWatcher(ctx context.Context, sess *session, scheduler *hotreload.Scheduler, path string, framework types.Framework) error {
	w, err := watcher.New(sess.logger)
	if err != nil {
		return err
	}
	w.AddFilter(watcher.SceneSourceFilter)
	w.AddFilter(watcher.NoHiddenFilter)
	w.AddFilter(watcher.NoNodeModulesFilter)
	w.AddHandler(func(_ string, content string) {
		scheduler.SourceChanged(content, framework)
	})

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		err = w.AddRecursive(path)
	} else {
		err = w.AddPath(path)
	}
	if err != nil {
		return err
	}

	w.Start(ctx)
	go func() {
		<-ctx.Done()
		_ = w.Stop()
	}()
	return nil
}
