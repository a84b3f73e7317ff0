package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"sceneforge/internal/types"
)

// The fallback transform is a purely textual, best-effort rewrite used when
// no compiler source is reachable. It is an execution aid, not a correctness
// guarantee: imports are stripped, exports unwrapped, and the remainder runs
// in a closure that pulls the framework's globals from the sandbox scope. It
// never fails outright.

const fallbackWarning = "compiler unavailable; fallback transform used (imports stripped, no type checking or bundling)"

var (
	importLineRe  = regexp.MustCompile(`(?m)^\s*import\s+[^;\n]+;?\s*$`)
	exportDefault = regexp.MustCompile(`(?m)^\s*export\s+default\s+`)
	exportKeyword = regexp.MustCompile(`(?m)^\s*export\s+`)
	dynamicImport = regexp.MustCompile(`import\s*\(`)
)

// frameworkGlobals lists the view-library root objects the wrapped closure
// pulls from the sandbox's global scope, per framework.
var frameworkGlobals = map[types.Framework][]string{
	types.FrameworkAFrame:          {"AFRAME"},
	types.FrameworkThree:           {"THREE"},
	types.FrameworkReactThreeFiber: {"React", "ReactDOM", "THREE"},
	types.FrameworkBabylon:         {"BABYLON"},
}

func fallbackTransform(req types.BuildRequest) types.BuildResult {
	code := req.EntryCode
	code = importLineRe.ReplaceAllString(code, "")
	code = exportDefault.ReplaceAllString(code, "")
	code = exportKeyword.ReplaceAllString(code, "")
	code = dynamicImport.ReplaceAllString(code, "Promise.resolve(")

	var sb strings.Builder
	sb.WriteString("(function () {\n")
	for _, global := range frameworkGlobals[req.Framework] {
		fmt.Fprintf(&sb, "  var %s = window.%s;\n", global, global)
	}
	sb.WriteString(code)
	sb.WriteString("\n})();\n")
	bundle := sb.String()

	return types.BuildResult{
		Success:     true,
		BundleCode:  bundle,
		Warnings:    []string{fallbackWarning},
		Bytes:       len(bundle),
		BackendName: BackendName,
	}
}
