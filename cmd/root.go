// Package cmd provides the command-line interface for sceneforge with
// configuration from multiple sources.
//
// Configuration precedence, highest first:
//  1. Command-line flags
//  2. SCENEFORGE_* environment variables
//  3. Configuration file (.sceneforge.yml)
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sceneforge",
	Short: "Build pipeline and hot-reload engine for AI-authored 3D/XR scenes",
	Long: `Sceneforge turns AI-authored scene source (JSX/TSX component code for
react-three-fiber, Babylon.js TypeScript, plain three.js or A-Frame markup)
into a single executable bundle, with two interchangeable compilation
backends, caching, debounced hot reload and post-build analysis.

Quick Start:
  sceneforge init                 Write a starter config file
  sceneforge build scene.tsx      Compile one scene
  sceneforge watch ./scenes       Rebuild on change
  sceneforge serve ./scenes       Watch plus a websocket status feed

Command Aliases:
  build (b), watch (w), serve (s), stats (st)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sceneforge.yml)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes viper with the config file and environment
// overrides (SCENEFORGE_ prefix, e.g. SCENEFORGE_SERVE_PORT=9000).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".sceneforge")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SCENEFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "reading config: %v\n", err)
		}
	}
}
