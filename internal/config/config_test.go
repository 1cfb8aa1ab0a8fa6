package config

import (
	"errors"
	"strings"
	"testing"
)

func TestParseValid(t *testing.T) {
	data := []byte(`
workspace: /tmp/ws
domain: mtg
annotators:
  - name: primary
    backend: google/gemini-3-flash-preview
    temperature: 0.3
    max_tokens: 1500
  - name: secondary
    backend: anthropic/claude-sonnet-4.5
    temperature: 0.3
thresholds:
  min_iaa: 0.65
  escalation_alpha: 0.35
selection:
  top_k: 25
  min_uncertainty: 0.4
  use_diversity: false
`)
	cfg, err := Parse(data, "pipeline.yml")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Annotators) != 2 {
		t.Fatalf("annotators = %d, want 2", len(cfg.Annotators))
	}
	if cfg.MinIAA() != 0.65 {
		t.Fatalf("min_iaa = %v, want 0.65", cfg.MinIAA())
	}
	if cfg.EscalationAlpha() != 0.35 {
		t.Fatalf("escalation_alpha = %v, want 0.35", cfg.EscalationAlpha())
	}
	if cfg.TopK() != 25 {
		t.Fatalf("top_k = %d, want 25", cfg.TopK())
	}
	if cfg.UseDiversity() {
		t.Fatal("use_diversity = true, want false")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"), "pipeline.yml")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Annotators) != 3 {
		t.Fatalf("default annotators = %d, want 3", len(cfg.Annotators))
	}
	if cfg.MinIAA() != 0.6 {
		t.Fatalf("default min_iaa = %v, want 0.6", cfg.MinIAA())
	}
	if cfg.EscalationUncertainty() != 0.7 {
		t.Fatalf("default escalation_uncertainty = %v, want 0.7", cfg.EscalationUncertainty())
	}
	if !cfg.UseDiversity() {
		t.Fatal("diversity must default on")
	}
}

func TestParseCollectsValidationErrors(t *testing.T) {
	data := []byte(`
annotators:
  - name: dup
    backend: b1
  - name: dup
    backend: ""
    temperature: 3.0
thresholds:
  min_iaa: 1.5
selection:
  top_k: 0
`)
	_, err := Parse(data, "pipeline.yml")
	if err == nil {
		t.Fatal("expected validation errors")
	}
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("err = %T, want ValidationErrors", err)
	}
	msg := errs.Error()
	for _, want := range []string{"duplicate annotator name", "backend is required", "temperature", "min_iaa", "top_k"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("errors %q missing %q", msg, want)
		}
	}
}

func TestParseRejectsSingleAnnotator(t *testing.T) {
	data := []byte(`
annotators:
  - name: solo
    backend: b1
`)
	_, err := Parse(data, "pipeline.yml")
	if err == nil || !strings.Contains(err.Error(), "at least 2 annotators") {
		t.Fatalf("err = %v, want annotator count error", err)
	}
}
