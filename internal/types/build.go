package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// DefaultJSXRuntimeMode is used when a BuildRequest does not specify one.
const DefaultJSXRuntimeMode = "automatic"

// BuildRequest describes a single build attempt. It is constructed per
// attempt and owned solely by the caller until handed to a backend; backends
// treat it as immutable.
type BuildRequest struct {
	// Framework selects loader, entry path and vendor aliases.
	Framework Framework
	// EntryCode is the source text for the entry file.
	EntryCode string
	// ExtraFiles maps additional virtual paths to their contents.
	ExtraFiles map[string]string
	// JSXRuntimeMode is the JSX transform mode ("automatic" or "classic").
	JSXRuntimeMode string
	// Defines are preprocessor substitutions applied during compilation.
	Defines map[string]string
	// Minify enables output minification.
	Minify bool
}

// NewBuildRequest constructs a request with defaults applied.
func NewBuildRequest(framework Framework, entryCode string) BuildRequest {
	return BuildRequest{
		Framework:      framework,
		EntryCode:      entryCode,
		JSXRuntimeMode: DefaultJSXRuntimeMode,
	}
}

// Hash returns a stable content hash over every field that affects the
// produced bundle. Map keys are sorted so insertion order is irrelevant.
func (r BuildRequest) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "fw:%s\n", r.Framework)
	fmt.Fprintf(h, "jsx:%s\n", r.JSXRuntimeMode)
	fmt.Fprintf(h, "minify:%t\n", r.Minify)
	fmt.Fprintf(h, "entry:%d:", len(r.EntryCode))
	h.Write([]byte(r.EntryCode))
	h.Write([]byte{'\n'})
	for _, k := range sortedKeys(r.ExtraFiles) {
		fmt.Fprintf(h, "file:%s:%d:%s\n", k, len(r.ExtraFiles[k]), r.ExtraFiles[k])
	}
	for _, k := range sortedKeys(r.Defines) {
		fmt.Fprintf(h, "define:%s=%s\n", k, r.Defines[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildResult is the outcome of a build attempt. Backends never fail with a
// Go error across the build boundary; every failure mode is encoded here.
type BuildResult struct {
	// Success reports whether a bundle was produced.
	Success bool
	// BundleCode is the executable bundle. Empty whenever Success is false.
	BundleCode string
	// Warnings are non-fatal compiler diagnostics.
	Warnings []string
	// Errors are failure diagnostics. Errors[0] is the headline message
	// rendered by the UI collaborator.
	Errors []string
	// Bytes is the bundle size. Zero on failure unless partially measured.
	Bytes int
	// DurationMs is the wall-clock build time in milliseconds.
	DurationMs int
	// FromCache marks results served from a backend cache. Cached results
	// still carry the original Bytes and DurationMs.
	FromCache bool
	// BackendName identifies which backend produced the result.
	BackendName string
}

// FirstError returns the headline error message, or "" on success.
func (r BuildResult) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

// FailedResult builds a failure result with the given diagnostics.
func FailedResult(backendName string, errs ...string) BuildResult {
	return BuildResult{
		Success:     false,
		Errors:      errs,
		BackendName: backendName,
	}
}

// BuildState is the discriminant of the build status state machine.
type BuildState int

const (
	// StateIdle means no build has run since construction or the last reset.
	StateIdle BuildState = iota
	// StateBuilding means exactly one build is in flight.
	StateBuilding
	// StateSuccess means the last build produced a bundle.
	StateSuccess
	// StateError means the last build failed.
	StateError
)

// String returns the lower-case state name.
func (s BuildState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// BuildStatus is the observable status of the build manager. Legal
// transitions: Idle -> Building on start, Building -> Success|Error on
// completion, any -> Idle on explicit reset. The manager enforces these; a
// request arriving while Building is rejected, not queued.
type BuildStatus struct {
	State BuildState
	// Bytes and DurationMs are populated in StateSuccess.
	Bytes      int
	DurationMs int
	// Message is populated in StateError with the headline error.
	Message string
}

// String renders the status for logs and the CLI.
func (s BuildStatus) String() string {
	switch s.State {
	case StateSuccess:
		return fmt.Sprintf("success (%d bytes, %dms)", s.Bytes, s.DurationMs)
	case StateError:
		return "error: " + strings.TrimSpace(s.Message)
	default:
		return s.State.String()
	}
}
