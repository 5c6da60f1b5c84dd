package flow

import (
	"strings"
	"testing"
)

func TestParse_SingleDocument(t *testing.T) {
	src := `
name: Login checks
description: Smoke test for the login endpoint
config:
  baseUrl: https://api.example.com
  timeout: 5000
steps:
  - name: Login
    method: POST
    url: /auth/login
    body:
      user: admin
    verify:
      status: 200
    extract:
      token: body.token
  - name: Profile
    url: /me
`
	tf, err := Parse([]byte(src), "login.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tf.Name != "Login checks" {
		t.Errorf("expected name=Login checks, got %q", tf.Name)
	}
	if tf.Config.BaseURL != "https://api.example.com" {
		t.Errorf("expected baseUrl, got %q", tf.Config.BaseURL)
	}
	if tf.Config.Timeout != 5000 {
		t.Errorf("expected timeout=5000, got %d", tf.Config.Timeout)
	}
	if len(tf.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(tf.Steps))
	}
	if tf.Steps[0].Method != "POST" {
		t.Errorf("expected method=POST, got %q", tf.Steps[0].Method)
	}
	if tf.Steps[0].Extract["token"] != "body.token" {
		t.Errorf("expected extract token, got %v", tf.Steps[0].Extract)
	}
	if tf.Steps[1].Kind() != KindAction {
		t.Errorf("expected action step, got %v", tf.Steps[1].Kind())
	}
}

func TestParse_TwoDocuments_StepsArray(t *testing.T) {
	src := `
name: Checkout
config:
  baseUrl: https://shop.example.com
---
- name: Add item
  method: POST
  url: /cart
- name: Pay
  method: POST
  url: /checkout
`
	tf, err := Parse([]byte(src), "checkout.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tf.Name != "Checkout" {
		t.Errorf("expected name=Checkout, got %q", tf.Name)
	}
	if len(tf.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(tf.Steps))
	}
	if tf.Steps[1].Name != "Pay" {
		t.Errorf("expected step name=Pay, got %q", tf.Steps[1].Name)
	}
}

func TestParse_TwoDocuments_MappingMerge(t *testing.T) {
	src := `
name: Base
config:
  baseUrl: https://api.example.com
---
name: Overridden
steps:
  - name: Ping
    url: /ping
`
	tf, err := Parse([]byte(src), "merge.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tf.Name != "Overridden" {
		t.Errorf("expected merged name=Overridden, got %q", tf.Name)
	}
	if tf.Config.BaseURL != "https://api.example.com" {
		t.Errorf("expected baseUrl preserved from first document, got %q", tf.Config.BaseURL)
	}
	if len(tf.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(tf.Steps))
	}
}

func TestParse_EmptyInput(t *testing.T) {
	if _, err := Parse([]byte(""), "empty.yaml"); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := Parse([]byte("   \n\n"), "blank.yaml"); err == nil {
		t.Fatal("expected error for whitespace-only input")
	}
}

func TestParse_RejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"scalar document", `"just a string"`},
		{"sequence first document", "- name: a\n  url: /a\n"},
		{"scalar second document", "name: x\n---\n42\n"},
		{"three documents", "name: x\n---\n- name: a\n  url: /a\n---\nname: y\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.src), "bad.yaml"); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestParse_StepMustBeExactlyOneKind(t *testing.T) {
	src := `
steps:
  - name: Ambiguous
    url: /x
    flow: other.yaml
`
	_, err := Parse([]byte(src), "ambiguous.yaml")
	if err == nil {
		t.Fatal("expected error for step that is both action and flow reference")
	}
	if !strings.Contains(err.Error(), "exactly one") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParse_PureDelegation(t *testing.T) {
	src := `
name: Wrapper
flow: inner.yaml
`
	tf, err := Parse([]byte(src), "wrapper.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tf.Flow != "inner.yaml" {
		t.Errorf("expected flow=inner.yaml, got %q", tf.Flow)
	}
	if len(tf.Flatten()) != 0 {
		t.Errorf("expected no steps, got %d", len(tf.Flatten()))
	}
}

func TestFlatten_ContiguousIndexSpace(t *testing.T) {
	src := `
name: Sections
beforeTest:
  - name: Setup
    method: POST
    url: /setup
steps:
  - name: Main
    url: /main
afterTest:
  - name: Teardown
    method: DELETE
    url: /teardown
`
	tf, err := Parse([]byte(src), "sections.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	steps := tf.Flatten()
	if len(steps) != 3 {
		t.Fatalf("expected 3 flattened steps, got %d", len(steps))
	}
	want := []string{"Setup", "Main", "Teardown"}
	for i, name := range want {
		if steps[i].Name != name {
			t.Errorf("flattened[%d]: expected %q, got %q", i, name, steps[i].Name)
		}
	}
}

func TestConfigMerge(t *testing.T) {
	parent := Config{
		BaseURL: "https://parent.example.com",
		Timeout: 1000,
		Headers: map[string]string{"X-Parent": "1", "X-Shared": "parent"},
	}
	child := Config{
		Headers: map[string]string{"X-Shared": "child"},
	}

	merged := parent.Merge(child)
	if merged.BaseURL != "https://parent.example.com" {
		t.Errorf("expected parent baseUrl kept, got %q", merged.BaseURL)
	}
	if merged.Timeout != 1000 {
		t.Errorf("expected parent timeout kept, got %d", merged.Timeout)
	}
	if merged.Headers["X-Shared"] != "child" {
		t.Errorf("expected child header to win, got %q", merged.Headers["X-Shared"])
	}
	if merged.Headers["X-Parent"] != "1" {
		t.Errorf("expected parent header preserved, got %q", merged.Headers["X-Parent"])
	}
	if parent.Headers["X-Shared"] != "parent" {
		t.Errorf("merge must not mutate the parent config")
	}
}
