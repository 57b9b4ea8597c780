package notify

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRules_EmptyPathReturnsDefaults(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != len(DefaultRules()) {
		t.Fatalf("got %d rules, want default table", len(rules))
	}
}

func TestLoadRules_ParsesYAMLSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
rules:
  - component: 3
    event_code: 7
    min_count: 2
    target_level: 2
    freq_multiplier: 3
    duration_minutes: 20
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Component != 3 || rules[0].TargetLevel != 2 {
		t.Fatalf("parsed rules = %+v, want single component=3/target_level=2 rule", rules)
	}
}

func TestLoadRules_RejectsTooManyRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	var content string
	content += "rules:\n"
	for i := 0; i < 11; i++ {
		content += "  - component: 1\n    event_code: 1\n    min_count: 1\n    target_level: 1\n    freq_multiplier: 2\n    duration_minutes: 1\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for rules file exceeding 10 entries")
	}
}
