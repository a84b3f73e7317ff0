package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sceneforge/internal/hotreload"
	"sceneforge/internal/statusfeed"
	"sceneforge/internal/types"
)

var serveFramework string

// serveCmd runs watch mode plus a websocket status feed for UI clients.
var serveCmd = &cobra.Command{
	Use:     "serve [path]",
	Aliases: []string{"s"},
	Short:   "Watch scene source and push build status over websockets",
	Args:    cobra.ExactArgs(1),
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveFramework, "framework", "f", "react-three-fiber",
		"scene framework (aframe, three, react-three-fiber, babylon)")
}

func runServe(cmd *cobra.Command, args []string) error {
	framework, err := types.ParseFramework(serveFramework)
	if err != nil {
		return err
	}

	sess, err := newSession()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := statusfeed.New(sess.manager, sess.cfg.Serve.AllowedOrigins, sess.logger)
	sess.manager.Subscribe(feed.HandleEvent)

	scheduler := hotreload.New(sess.cfg.HotReloadRuntime(), sess.manager.BuildCode, sess.logger)
	defer scheduler.Stop()

	if err := startWatcher(ctx, sess, scheduler, args[0], framework); err != nil {
		return err
	}

	addr := net.JoinHostPort(sess.cfg.Serve.Host, strconv.Itoa(sess.cfg.Serve.Port))
	fmt.Fprintf(os.Stderr, "watching %s, status feed on ws://%s/ws\n", args[0], addr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return feed.Serve(ctx, addr)
	})
	group.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return group.Wait()
}
