// Package annotation defines the judgment types produced by annotator
// backends and the backend port itself.
package annotation

// Config identifies one independent judgment source. Configs are supplied
// at orchestrator construction and never mutated afterwards.
type Config struct {
	Name        string  `json:"name" yaml:"name"`
	Backend     string  `json:"backend" yaml:"backend"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// DefaultConfigs returns the stock three-annotator roster. Diverse
// backends give better consensus than repeated calls to one model.
func DefaultConfigs() []Config {
	return []Config{
		{
			Name:        "gemini_3_flash",
			Backend:     "google/gemini-3-flash-preview",
			Temperature: 0.3,
			MaxTokens:   1500,
			Description: "Fast, high quality; primary annotator",
		},
		{
			Name:        "claude_sonnet_4_5",
			Backend:     "anthropic/claude-sonnet-4.5",
			Temperature: 0.3,
			MaxTokens:   1500,
			Description: "Strong reasoning, detailed rationales",
		},
		{
			Name:        "gemini_2_5_flash",
			Backend:     "google/gemini-2.5-flash",
			Temperature: 0.4,
			MaxTokens:   1500,
			Description: "Diverse perspective at higher temperature",
		},
	}
}

// Request is the payload sent to every backend for one subject pair.
type Request struct {
	SubjectA string `json:"subject_a"`
	SubjectB string `json:"subject_b"`
	// Context carries optional extra evidence for the pair, e.g. a
	// rendered co-occurrence summary. Empty means no context.
	Context string `json:"context,omitempty"`
}

// Annotation is one structured judgment about a subject pair. Immutable
// after creation.
type Annotation struct {
	SubjectA string `json:"subject_a"`
	SubjectB string `json:"subject_b"`
	// Score is a continuous similarity judgment in [0, 1].
	Score float64 `json:"score"`
	// Label is an open categorical judgment, e.g. "functional",
	// "synergy", "unrelated".
	Label string `json:"label"`
	// Substitute reports whether one subject can stand in for the other.
	Substitute bool   `json:"substitute"`
	Rationale  string `json:"rationale"`

	AnnotatorID string  `json:"annotator_id"`
	Backend     string  `json:"backend,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}
