package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sceneforge/internal/types"
)

var (
	buildFramework string
	buildMinify    bool
	buildJSON      bool
	buildOutput    string
)

// buildCmd compiles a single scene source file.
var buildCmd = &cobra.Command{
	Use:     "build [file]",
	Aliases: []string{"b"},
	Short:   "Compile one scene source file into a bundle",
	Args:    cobra.ExactArgs(1),
	RunE:    runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildFramework, "framework", "f", "react-three-fiber",
		"scene framework (aframe, three, react-three-fiber, babylon)")
	buildCmd.Flags().BoolVarP(&buildMinify, "minify", "m", false, "minify the bundle")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "print the result and analysis as JSON")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "write the bundle to a file instead of stdout")
}

func runBuild(cmd *cobra.Command, args []string) error {
	framework, err := types.ParseFramework(buildFramework)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	sess, err := newSession()
	if err != nil {
		return err
	}

	var result types.BuildResult
	if framework.RequiresBuild() {
		req := types.NewBuildRequest(framework, string(source))
		req.Minify = buildMinify
		result = sess.manager.BuildRequest(cmd.Context(), req)
	} else {
		// Frameworks without a build step are injected directly.
		result = types.BuildResult{
			Success:    true,
			BundleCode: string(source),
			Bytes:      len(source),
		}
	}

	if buildJSON {
		payload := struct {
			Result   types.BuildResult `json:"result"`
			Analysis interface{}       `json:"analysis,omitempty"`
		}{Result: result}
		if an := sess.manager.LastAnalysis(); an != nil {
			payload.Analysis = an
		}
		return json.NewEncoder(os.Stdout).Encode(payload)
	}

	if !result.Success {
		fmt.Fprintf(os.Stderr, "build failed: %s\n", result.FirstError())
		for _, e := range result.Errors[1:] {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		os.Exit(1)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if an := sess.manager.LastAnalysis(); an != nil {
		fmt.Fprintf(os.Stderr, "built %d bytes in %dms (grade: %s, backend: %s)\n",
			result.Bytes, result.DurationMs, an.Grade, result.BackendName)
	}

	if buildOutput != "" {
		return os.WriteFile(buildOutput, []byte(result.BundleCode), 0o644)
	}
	fmt.Println(result.BundleCode)
	return nil
}
