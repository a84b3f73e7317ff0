// Package analyzer derives quality grades, size/dependency breakdowns and
// rolling trends from build results.
//
// The dependency sizes, optimization savings and phase split are heuristic
// estimates, not bundle introspection; each is labeled as such on the types
// that carry it.
package analyzer

import (
	"fmt"
	"sync"
	"time"

	"sceneforge/internal/types"
)

// Grade buckets a build by duration and bundle size.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
)

// DependencyEstimate is one vendor dependency with its approximate size.
// Sizes come from a static per-framework table, not from the actual bundle.
type DependencyEstimate struct {
	Name        string `json:"name"`
	ApproxBytes int    `json:"approxBytes"`
}

// OptimizationReport estimates the headroom left in the bundle. All figures
// are heuristic: minify savings assume unminified size is about 2.5x the
// bundle, dead-code and tree-shaking are fixed fractions.
type OptimizationReport struct {
	MinifySavingsBytes    int      `json:"minifySavingsBytes"`
	DeadCodeSavingsBytes  int      `json:"deadCodeSavingsBytes"`
	TreeShakeSavingsBytes int      `json:"treeShakeSavingsBytes"`
	Suggestions           []string `json:"suggestions,omitempty"`
}

// PhaseBreakdown splits total duration into fixed proportions
// (parse 20%, transform 40%, bundle 30%, write 10%); not measured per phase.
type PhaseBreakdown struct {
	ParseMs     int `json:"parseMs"`
	TransformMs int `json:"transformMs"`
	BundleMs    int `json:"bundleMs"`
	WriteMs     int `json:"writeMs"`
}

// BuildAnalysis is the derived, read-only view of one build result. It is
// never mutated after creation.
type BuildAnalysis struct {
	Timestamp    time.Time            `json:"timestamp"`
	Framework    string               `json:"framework"`
	Success      bool                 `json:"success"`
	FromCache    bool                 `json:"fromCache"`
	Bytes        int                  `json:"bytes"`
	DurationMs   int                  `json:"durationMs"`
	Grade        Grade                `json:"grade"`
	Dependencies []DependencyEstimate `json:"dependencies"`
	Optimization OptimizationReport   `json:"optimization"`
	Phases       PhaseBreakdown       `json:"phases"`
}

// Trend direction for a metric over recent history.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// TrendReport summarizes metric direction over the most recent builds.
type TrendReport struct {
	BuildTime  Trend `json:"buildTime"`
	BundleSize Trend `json:"bundleSize"`
}

// Recommendations aggregates the most recent analyses into operator advice.
type Recommendations struct {
	AvgBytes        int      `json:"avgBytes"`
	AvgDurationMs   int      `json:"avgDurationMs"`
	PoorShare       float64  `json:"poorShare"`
	AttentionNeeded bool     `json:"attentionNeeded"`
	Notes           []string `json:"notes,omitempty"`
}

const (
	historyCapacity = 50
	trendWindow     = 10
	trendMinEntries = 3
	recentWindow    = 5
)

// BuildAnalyzer owns the rolling analysis history exclusively. All access
// goes through its methods; callers receive copies.
type BuildAnalyzer struct {
	mu      sync.Mutex
	history []BuildAnalysis
}

// New creates an analyzer with an empty history.
func New() *BuildAnalyzer {
	return &BuildAnalyzer{
		history: make([]BuildAnalysis, 0, historyCapacity),
	}
}

// Analyze derives an analysis from a build result and appends it to the
// rolling history, evicting the oldest entry past capacity.
func (a *BuildAnalyzer) Analyze(result types.BuildResult, framework types.Framework) BuildAnalysis {
	analysis := BuildAnalysis{
		Timestamp:    time.Now(),
		Framework:    framework.String(),
		Success:      result.Success,
		FromCache:    result.FromCache,
		Bytes:        result.Bytes,
		DurationMs:   result.DurationMs,
		Grade:        gradeOf(result.DurationMs, result.Bytes),
		Dependencies: dependencyEstimates(framework),
		Optimization: optimizationReport(result),
		Phases:       phaseBreakdown(result.DurationMs),
	}

	a.mu.Lock()
	a.history = append(a.history, analysis)
	if len(a.history) > historyCapacity {
		a.history = a.history[len(a.history)-historyCapacity:]
	}
	a.mu.Unlock()

	return analysis
}

// History returns a copy of the rolling history, oldest first.
func (a *BuildAnalyzer) History() []BuildAnalysis {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]BuildAnalysis, len(a.history))
	copy(out, a.history)
	return out
}

// HistoryLen returns the number of retained analyses.
func (a *BuildAnalyzer) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// Trends computes metric direction over the most recent entries. With fewer
// than three entries both trends are stable by definition.
func (a *BuildAnalyzer) Trends() TrendReport {
	a.mu.Lock()
	recent := lastN(a.history, trendWindow)
	a.mu.Unlock()

	return TrendReport{
		BuildTime:  trendOf(recent, func(an BuildAnalysis) float64 { return float64(an.DurationMs) }),
		BundleSize: trendOf(recent, func(an BuildAnalysis) float64 { return float64(an.Bytes) }),
	}
}

// Recommendations aggregates the last five analyses.
func (a *BuildAnalyzer) Recommendations() Recommendations {
	a.mu.Lock()
	recent := lastN(a.history, recentWindow)
	a.mu.Unlock()

	if len(recent) == 0 {
		return Recommendations{}
	}

	var totalBytes, totalMs, poor int
	for _, an := range recent {
		totalBytes += an.Bytes
		totalMs += an.DurationMs
		if an.Grade == GradePoor {
			poor++
		}
	}

	rec := Recommendations{
		AvgBytes:      totalBytes / len(recent),
		AvgDurationMs: totalMs / len(recent),
		PoorShare:     float64(poor) / float64(len(recent)),
	}
	if rec.PoorShare > 0.5 {
		rec.AttentionNeeded = true
		rec.Notes = append(rec.Notes, "more than half of recent builds graded poor; review bundle size and build times")
	}
	if rec.AvgBytes > 500*1024 {
		rec.Notes = append(rec.Notes, fmt.Sprintf("average bundle is %dKB; consider splitting the scene", rec.AvgBytes/1024))
	}
	return rec
}

// gradeOf applies the threshold ladder in strict order; first match wins.
func gradeOf(durationMs, bytes int) Grade {
	seconds := float64(durationMs) / 1000.0
	kb := float64(bytes) / 1024.0

	switch {
	case seconds < 1.0 && kb < 100:
		return GradeExcellent
	case seconds < 2.0 && kb < 200:
		return GradeGood
	case seconds < 5.0 && kb < 500:
		return GradeFair
	default:
		return GradePoor
	}
}

// dependencyTable lists known vendor dependencies per framework with
// approximate sizes. Estimates only; the bundle is never introspected.
var dependencyTable = map[types.Framework][]DependencyEstimate{
	types.FrameworkAFrame: {
		{Name: "aframe", ApproxBytes: 1200 * 1024},
	},
	types.FrameworkThree: {
		{Name: "three", ApproxBytes: 650 * 1024},
	},
	types.FrameworkReactThreeFiber: {
		{Name: "react", ApproxBytes: 85 * 1024},
		{Name: "react-dom", ApproxBytes: 130 * 1024},
		{Name: "@react-three/fiber", ApproxBytes: 120 * 1024},
		{Name: "three", ApproxBytes: 650 * 1024},
	},
	types.FrameworkBabylon: {
		{Name: "@babylonjs/core", ApproxBytes: 3400 * 1024},
	},
}

func dependencyEstimates(framework types.Framework) []DependencyEstimate {
	deps := dependencyTable[framework]
	out := make([]DependencyEstimate, len(deps))
	copy(out, deps)
	return out
}

func optimizationReport(result types.BuildResult) OptimizationReport {
	report := OptimizationReport{
		// Unminified output is assumed to be ~2.5x the bundle.
		MinifySavingsBytes:    result.Bytes * 3 / 2,
		DeadCodeSavingsBytes:  result.Bytes / 10,
		TreeShakeSavingsBytes: result.Bytes / 20,
	}
	if result.Bytes > 500*1024 {
		report.Suggestions = append(report.Suggestions, "bundle exceeds 500KB; consider code splitting")
	}
	if result.DurationMs > 5000 {
		report.Suggestions = append(report.Suggestions, "build exceeded 5s; the native worker backend is faster for repeated builds")
	}
	return report
}

func phaseBreakdown(durationMs int) PhaseBreakdown {
	return PhaseBreakdown{
		ParseMs:     durationMs * 20 / 100,
		TransformMs: durationMs * 40 / 100,
		BundleMs:    durationMs * 30 / 100,
		WriteMs:     durationMs * 10 / 100,
	}
}

func lastN(history []BuildAnalysis, n int) []BuildAnalysis {
	if len(history) <= n {
		out := make([]BuildAnalysis, len(history))
		copy(out, history)
		return out
	}
	out := make([]BuildAnalysis, n)
	copy(out, history[len(history)-n:])
	return out
}

// trendOf splits the window into halves and compares averages. More than a
// +10% change is increasing, less than -10% decreasing, else stable.
func trendOf(window []BuildAnalysis, metric func(BuildAnalysis) float64) Trend {
	if len(window) < trendMinEntries {
		return TrendStable
	}

	mid := len(window) / 2
	firstAvg := avg(window[:mid], metric)
	secondAvg := avg(window[mid:], metric)
	if firstAvg == 0 {
		return TrendStable
	}

	change := (secondAvg - firstAvg) / firstAvg
	switch {
	case change > 0.10:
		return TrendIncreasing
	case change < -0.10:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func avg(window []BuildAnalysis, metric func(BuildAnalysis) float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var total float64
	for _, an := range window {
		total += metric(an)
	}
	return total / float64(len(window))
}
