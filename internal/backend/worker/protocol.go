package worker

// The worker speaks a JSON-lines protocol over stdin/stdout. Every request
// carries a cmd and a caller-generated correlation id; responses are matched
// back by that id. The transport gives at-least-once delivery per request;
// correlation matching on this side removes the pending entry before
// resolving, so replays are idempotent.

// Commands accepted by the worker process.
const (
	cmdBuild      = "build"
	cmdClearCache = "clear-cache"
	cmdStats      = "stats"
	cmdPing       = "ping"
)

// request is the wire shape of every worker command.
type request struct {
	Cmd       string `json:"cmd"`
	MessageID string `json:"messageId"`

	// Build payload.
	Framework string            `json:"framework,omitempty"`
	EntryPath string            `json:"entryPath,omitempty"`
	Files     map[string]string `json:"files,omitempty"`
	Defines   map[string]string `json:"defines,omitempty"`
	Minify    bool              `json:"minify,omitempty"`
}

// response is the wire shape of every worker reply.
type response struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"` // "ok" or "error"
	Error     string `json:"error,omitempty"`

	// Build reply. fromCache responses still carry the original bytes and
	// durationMs so analysis stays meaningful.
	Bundle     string            `json:"bundle,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
	Bytes      int               `json:"bytes,omitempty"`
	DurationMs int               `json:"durationMs,omitempty"`
	FromCache  bool              `json:"fromCache,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// Stats reply.
	TotalBuilds    int     `json:"totalBuilds,omitempty"`
	CacheHits      int     `json:"cacheHits,omitempty"`
	AverageBuildMs float64 `json:"averageBuildMs,omitempty"`
	LastBuildMs    int     `json:"lastBuildMs,omitempty"`
	CacheSizeBytes int     `json:"cacheSizeBytes,omitempty"`
	UptimeSeconds  float64 `json:"uptimeSeconds,omitempty"`
}

const (
	statusOK    = "ok"
	statusError = "error"
)
