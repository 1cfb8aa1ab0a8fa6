package annotation

import "context"

// Backend produces one Annotation per invocation. Implementations must be
// safe for concurrent use: the orchestrator fans out one call per
// configured annotator at a time. Timeouts are the backend's own
// responsibility; an expired call should simply return an error.
type Backend interface {
	Name() string
	Annotate(ctx context.Context, cfg Config, req Request) (*Annotation, error)
}
