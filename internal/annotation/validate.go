package annotation

import (
	"fmt"
	"strings"
)

// Validate checks that a backend response is usable. The orchestrator
// treats a validation failure the same as a failed call: the annotation
// is dropped and logged, never surfaced to the caller.
func Validate(ann *Annotation) error {
	if ann == nil {
		return fmt.Errorf("annotation is nil")
	}
	if strings.TrimSpace(ann.SubjectA) == "" || strings.TrimSpace(ann.SubjectB) == "" {
		return fmt.Errorf("annotation is missing subject identifiers")
	}
	if ann.Score < 0 || ann.Score > 1 {
		return fmt.Errorf("score %v outside [0, 1]", ann.Score)
	}
	if strings.TrimSpace(ann.Label) == "" {
		return fmt.Errorf("label must be a non-empty string")
	}
	return nil
}
