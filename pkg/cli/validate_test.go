package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apiflow-dev/apiflow-runner/pkg/flow"
)

func writeFlow(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckReferences_Clean(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "child.yaml", "name: Child\n---\n- name: s\n  url: /a\n")
	parent := writeFlow(t, dir, "parent.yaml", "name: Parent\n---\n- name: delegate\n  flow: child.yaml\n")

	tf, err := flow.ParseFile(parent)
	if err != nil {
		t.Fatal(err)
	}
	if errs := checkReferences(tf, map[string]bool{filepath.Clean(parent): true}); len(errs) != 0 {
		t.Errorf("expected no problems, got %v", errs)
	}
}

func TestCheckReferences_Missing(t *testing.T) {
	dir := t.TempDir()
	parent := writeFlow(t, dir, "parent.yaml", "name: Parent\n---\n- name: delegate\n  flow: nowhere.yaml\n")

	tf, err := flow.ParseFile(parent)
	if err != nil {
		t.Fatal(err)
	}
	errs := checkReferences(tf, map[string]bool{filepath.Clean(parent): true})
	if len(errs) != 1 {
		t.Fatalf("expected 1 problem, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "nowhere.yaml") {
		t.Errorf("error should name the missing reference: %v", errs[0])
	}
}

func TestCheckReferences_Cycle(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "a.yaml", "name: A\n---\n- name: go\n  flow: b.yaml\n")
	writeFlow(t, dir, "b.yaml", "name: B\n---\n- name: back\n  flow: a.yaml\n")
	a := filepath.Join(dir, "a.yaml")

	tf, err := flow.ParseFile(a)
	if err != nil {
		t.Fatal(err)
	}
	errs := checkReferences(tf, map[string]bool{filepath.Clean(a): true})
	if len(errs) != 1 {
		t.Fatalf("expected 1 problem, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "cyclic") {
		t.Errorf("expected a cycle diagnosis, got %v", errs[0])
	}
}

func TestCheckReferences_SharedSiblingIsNotACycle(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "shared.yaml", "name: Shared\n---\n- name: s\n  url: /a\n")
	parent := writeFlow(t, dir, "parent.yaml",
		"name: Parent\n---\n- name: one\n  flow: shared.yaml\n- name: two\n  flow: shared.yaml\n")

	tf, err := flow.ParseFile(parent)
	if err != nil {
		t.Fatal(err)
	}
	if errs := checkReferences(tf, map[string]bool{filepath.Clean(parent): true}); len(errs) != 0 {
		t.Errorf("the same flow referenced twice at the same level is legal, got %v", errs)
	}
}

func TestCollectFlows_SkipsConfig(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "a.yaml", "name: A\n---\n- name: s\n  url: /a\n")
	writeFlow(t, dir, "b.yml", "name: B\n---\n- name: s\n  url: /b\n")
	writeFlow(t, dir, "config.yaml", "baseUrl: http://x\n")
	writeFlow(t, dir, "notes.txt", "not a flow\n")

	paths, err := collectFlows(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected only the 2 flow files, got %v", paths)
	}
	for _, p := range paths {
		if filepath.Base(p) == "config.yaml" {
			t.Errorf("config.yaml must not be treated as a flow")
		}
	}
}
