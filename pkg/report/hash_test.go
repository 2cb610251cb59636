package report

import (
	"strings"
	"testing"
)

func sampleReport() *Report {
	r := &Report{
		UUID:       "4f9b2c1e-8d7a-4e3f-9a6b-1c2d3e4f5a6b",
		Message:    "null reference",
		Classifier: []string{"NullReferenceException"},
		StackTrace: []Frame{
			{Function: "Player.Update"},
			{Function: "Game.Tick"},
			{Function: "Player.Update"},
		},
	}
	r.SetAttribute(ApplicationAttribute, "arena")
	return r
}

func TestHash_NoneStrategy(t *testing.T) {
	if got := Hash(sampleReport(), StrategyNone); got != "" {
		t.Errorf("Expected empty hash for StrategyNone, got %q", got)
	}
}

func TestHash_FingerprintOverrides(t *testing.T) {
	r := sampleReport()
	r.Fingerprint = "custom-fingerprint"

	for _, s := range []Strategy{StrategyNone, StrategyDefault, StrategyDefault | StrategyMessage} {
		if got := Hash(r, s); got != "custom-fingerprint" {
			t.Errorf("Hash(%s) = %q, expected fingerprint", s, got)
		}
	}
}

func TestHash_Format(t *testing.T) {
	got := Hash(sampleReport(), StrategyDefault)
	if len(got) != 64 {
		t.Fatalf("Expected 64 hex characters, got %d (%q)", len(got), got)
	}
	if strings.Trim(got, "0123456789abcdef") != "" {
		t.Errorf("Expected lowercase hex, got %q", got)
	}
}

func TestHash_Deterministic(t *testing.T) {
	a := Hash(sampleReport(), StrategyDefault|StrategyMessage)
	b := Hash(sampleReport(), StrategyDefault|StrategyMessage)
	if a != b {
		t.Errorf("Expected identical hashes, got %q and %q", a, b)
	}
}

func TestHash_StackTraceOrderAndRepetitionIgnored(t *testing.T) {
	a := sampleReport()
	b := sampleReport()
	b.StackTrace = []Frame{
		{Function: "Game.Tick", Line: 10},
		{Function: "Player.Update", Line: 42},
	}

	if Hash(a, StrategyDefault) != Hash(b, StrategyDefault) {
		t.Error("Expected frame order and duplicates not to change the hash")
	}
}

func TestHash_ComponentSelection(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		mutate   func(r *Report)
		same     bool
	}{
		{"message ignored by default", StrategyDefault, func(r *Report) { r.Message = "other" }, true},
		{"message included", StrategyMessage, func(r *Report) { r.Message = "other" }, false},
		{"classifier ignored by default", StrategyDefault, func(r *Report) { r.Classifier = []string{"IOException"} }, true},
		{"classifier included", StrategyClassifier, func(r *Report) { r.Classifier = []string{"IOException"} }, false},
		{"application ignored by default", StrategyDefault, func(r *Report) { r.SetAttribute(ApplicationAttribute, "lobby") }, true},
		{"application included", StrategyLibraryName, func(r *Report) { r.SetAttribute(ApplicationAttribute, "lobby") }, false},
		{"stack trace always included", StrategyMessage, func(r *Report) { r.StackTrace = nil }, false},
		{"uuid never included", StrategyDefault | StrategyMessage | StrategyClassifier | StrategyLibraryName, func(r *Report) { r.UUID = "x" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := sampleReport()
			changed := sampleReport()
			tt.mutate(changed)

			same := Hash(base, tt.strategy) == Hash(changed, tt.strategy)
			if same != tt.same {
				t.Errorf("Expected same=%v, got %v", tt.same, same)
			}
		})
	}
}

func TestHash_ComponentsDoNotRunTogether(t *testing.T) {
	a := &Report{Message: "ab", Classifier: []string{"c"}}
	b := &Report{Message: "a", Classifier: []string{"bc"}}

	s := StrategyMessage | StrategyClassifier
	if Hash(a, s) == Hash(b, s) {
		t.Error("Expected different hashes for differently split components")
	}
}

func TestHash_NilReport(t *testing.T) {
	if got := Hash(nil, StrategyDefault); got != "" {
		t.Errorf("Expected empty hash for nil report, got %q", got)
	}
}
