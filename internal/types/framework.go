// Package types provides common type definitions used throughout sceneforge.
// This package contains shared types to avoid circular dependencies between packages.
package types

import "fmt"

// Framework identifies one of the supported scene frameworks.
type Framework int

const (
	// FrameworkAFrame is declarative HTML markup executed directly in the
	// rendering sandbox without a build step.
	FrameworkAFrame Framework = iota
	// FrameworkThree is plain-script three.js source, also injected directly.
	FrameworkThree
	// FrameworkReactThreeFiber is component-oriented TSX source that needs
	// bundling and a JSX transform before it can run.
	FrameworkReactThreeFiber
	// FrameworkBabylon is TypeScript Babylon.js source that needs bundling.
	FrameworkBabylon
)

// FrameworkInfo carries the static metadata for a framework. The set is
// defined once at process start and never mutated.
type FrameworkInfo struct {
	// Name is the canonical identifier used in configs, CLI flags and the
	// worker wire protocol.
	Name string
	// RequiresBuild is false when the source is injected into the rendering
	// sandbox as-is, with no compilation.
	RequiresBuild bool
	// CodeLanguage is the source dialect tag passed to the compiler loader.
	CodeLanguage string
	// EntryFileName is the virtual entry path used for bundling.
	EntryFileName string
}

var frameworkTable = map[Framework]FrameworkInfo{
	FrameworkAFrame: {
		Name:          "aframe",
		RequiresBuild: false,
		CodeLanguage:  "html",
		EntryFileName: "index.html",
	},
	FrameworkThree: {
		Name:          "three",
		RequiresBuild: false,
		CodeLanguage:  "javascript",
		EntryFileName: "main.js",
	},
	FrameworkReactThreeFiber: {
		Name:          "react-three-fiber",
		RequiresBuild: true,
		CodeLanguage:  "tsx",
		EntryFileName: "App.tsx",
	},
	FrameworkBabylon: {
		Name:          "babylon",
		RequiresBuild: true,
		CodeLanguage:  "typescript",
		EntryFileName: "scene.ts",
	},
}

// Info returns the static metadata for the framework.
func (f Framework) Info() FrameworkInfo {
	return frameworkTable[f]
}

// String returns the canonical framework name.
func (f Framework) String() string {
	if info, ok := frameworkTable[f]; ok {
		return info.Name
	}
	return "unknown"
}

// RequiresBuild reports whether source for this framework must be compiled
// before execution.
func (f Framework) RequiresBuild() bool {
	return frameworkTable[f].RequiresBuild
}

// CodeLanguage returns the source dialect tag for this framework.
func (f Framework) CodeLanguage() string {
	return frameworkTable[f].CodeLanguage
}

// EntryFileName returns the virtual entry path used when bundling.
func (f Framework) EntryFileName() string {
	return frameworkTable[f].EntryFileName
}

// Frameworks returns all known frameworks in declaration order.
func Frameworks() []Framework {
	return []Framework{FrameworkAFrame, FrameworkThree, FrameworkReactThreeFiber, FrameworkBabylon}
}

// ParseFramework resolves a canonical name back to a Framework.
func ParseFramework(name string) (Framework, error) {
	for f, info := range frameworkTable {
		if info.Name == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown framework %q", name)
}
