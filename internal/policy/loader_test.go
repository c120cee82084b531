package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPolicy_Success(t *testing.T) {
	path := writePolicy(t, `
version: 1
remediate_ports: "22,3389,5432"
exempt_groups:
  - sg-0bastion
exemptions:
  - name: bastion
    expression: 'groupName.startsWith("bastion-")'
`)

	cfg, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Version != 1 {
		t.Fatalf("expected version 1")
	}
	if cfg.RemediatePorts != "22,3389,5432" {
		t.Errorf("remediate_ports: got %q", cfg.RemediatePorts)
	}
	if len(cfg.ExemptGroups) != 1 || cfg.ExemptGroups[0] != "sg-0bastion" {
		t.Errorf("exempt_groups: got %v", cfg.ExemptGroups)
	}
	if len(cfg.Exemptions) != 1 || cfg.Exemptions[0].Name != "bastion" {
		t.Errorf("exemptions: got %+v", cfg.Exemptions)
	}
}

func TestLoadPolicy_InvalidVersionLeftToValidate(t *testing.T) {
	path := writePolicy(t, "version: 2\nexempt_groups: [web]\n")
	cfg, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if errs := Validate(cfg); len(errs) != 2 {
		t.Fatalf("expected version and exempt_groups errors, got %v", errs)
	}
}

func TestLoadPolicy_UnknownField(t *testing.T) {
	path := writePolicy(t, "version: 1\nexemption:\n  - name: typo\n")
	if _, err := LoadPolicy(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadPolicy_Empty(t *testing.T) {
	path := writePolicy(t, "")
	if _, err := LoadPolicy(path); err == nil {
		t.Fatalf("expected error for empty file")
	}
}

func TestLoadPolicy_FileNotFound(t *testing.T) {
	if _, err := LoadPolicy("nonexistent.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
