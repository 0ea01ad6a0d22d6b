package descriptor

import (
	"errors"
	"testing"
)

func TestParseValidDocument(t *testing.T) {
	doc := []byte(`{"projects":[{"id":"p1","services":[{"name":"hello","type":"cloud_run_revision","threshold":99.95}]}]}`)

	set, err := Parse(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(set.Projects))
	}
	service, err := set.Lookup("p1", "hello")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if service.Threshold != 99.95 {
		t.Fatalf("expected threshold 99.95, got %v", service.Threshold)
	}
}

func TestParseNormalizesThresholdPrecision(t *testing.T) {
	doc := []byte(`{"projects":[{"id":"p1","services":[{"name":"hello","type":"cloud_run_revision","threshold":99.9500001}]}]}`)

	set, err := Parse(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := set.Projects[0].Services[0].Threshold; got != 99.95 {
		t.Fatalf("expected threshold normalized to 99.95, got %v", got)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not-json", `{"projects":`},
		{"missing-projects", `{}`},
		{"projects-not-array", `{"projects":{}}`},
		{"missing-threshold", `{"projects":[{"id":"p1","services":[{"name":"hello","type":"cloud_run_revision"}]}]}`},
		{"threshold-not-number", `{"projects":[{"id":"p1","services":[{"name":"hello","type":"cloud_run_revision","threshold":"99.95"}]}]}`},
		{"unknown-field", `{"projects":[],"extra":true}`},
		{"unknown-type", `{"projects":[{"id":"p1","services":[{"name":"hello","type":"compute_disk","threshold":99.95}]}]}`},
		{"empty-projects", `{"projects":[]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatalf("expected error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
		})
	}
}
