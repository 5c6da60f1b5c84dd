package env

import (
	"regexp"
	"strings"
	"testing"
)

func TestInterpolate_MissingStaysLiteral(t *testing.T) {
	e := New()
	got := e.Interpolate("{{missing}}")
	if got != "{{missing}}" {
		t.Errorf("expected unresolved placeholder to stay literal, got %q", got)
	}
}

func TestInterpolate_ResolvesValues(t *testing.T) {
	e := New()
	e.Set("user", "alice")
	e.Set("id", float64(42))

	got := e.Interpolate("/users/{{id}}?by={{user}}")
	if got != "/users/42?by=alice" {
		t.Errorf("unexpected interpolation: %q", got)
	}
}

func TestInterpolate_MixedResolvedAndMissing(t *testing.T) {
	e := New()
	e.Set("a", "1")

	got := e.Interpolate("{{a}}-{{b}}")
	if got != "1-{{b}}" {
		t.Errorf("expected partial resolution, got %q", got)
	}
}

func TestInterpolate_MockGenerators(t *testing.T) {
	e := New()

	uuidPattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	if got := e.Interpolate("{{$uuid}}"); !uuidPattern.MatchString(got) {
		t.Errorf("$uuid produced %q", got)
	}
	if got := e.Interpolate("{{$mock.email}}"); !strings.Contains(got, "@") {
		t.Errorf("$mock.email produced %q", got)
	}
	if got := e.Interpolate("{{$randomInt}}"); got == "{{$randomInt}}" {
		t.Errorf("$randomInt was not generated")
	}
	if got := e.Interpolate("{{$timestamp}}"); len(got) < 10 {
		t.Errorf("$timestamp produced %q", got)
	}
	if got := e.Interpolate("{{$mock.boolean}}"); got != "true" && got != "false" {
		t.Errorf("$mock.boolean produced %q", got)
	}

	// Unknown mock kinds stay visible instead of silently blanking.
	if got := e.Interpolate("{{$mock.nosuchkind}}"); got != "{{$mock.nosuchkind}}" {
		t.Errorf("unknown mock kind should stay literal, got %q", got)
	}
}

func TestInterpolate_MockIsFreshPerCall(t *testing.T) {
	e := New()
	a := e.Interpolate("{{$uuid}}")
	b := e.Interpolate("{{$uuid}}")
	if a == b {
		t.Errorf("expected fresh uuid per call, got %q twice", a)
	}
}

func TestDeepInterpolate(t *testing.T) {
	e := New()
	e.Set("name", "bob")

	in := map[string]any{
		"user":  "{{name}}",
		"count": 3,
		"tags":  []any{"{{name}}", "static"},
		"nested": map[string]any{
			"deep": "{{name}}",
		},
	}

	out, ok := e.DeepInterpolate(in).(map[string]any)
	if !ok {
		t.Fatalf("expected map result")
	}
	if out["user"] != "bob" {
		t.Errorf("expected user=bob, got %v", out["user"])
	}
	if out["count"] != 3 {
		t.Errorf("non-string values must pass through, got %v", out["count"])
	}
	if tags := out["tags"].([]any); tags[0] != "bob" || tags[1] != "static" {
		t.Errorf("unexpected tags: %v", tags)
	}
	if nested := out["nested"].(map[string]any); nested["deep"] != "bob" {
		t.Errorf("unexpected nested: %v", nested)
	}
}

func TestExtract(t *testing.T) {
	e := New()
	body := []byte(`{"user":{"id":7,"name":"carol"},"items":[{"sku":"a-1"}]}`)

	err := e.Extract(map[string]string{
		"userId":   "body.user.id",
		"userName": "body.user.name",
		"firstSku": "body.items.0.sku",
		"missing":  "body.user.nope",
	}, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v, _ := e.Get("userId"); FormatValue(v) != "7" {
		t.Errorf("expected userId=7, got %v", v)
	}
	if v, _ := e.Get("userName"); v != "carol" {
		t.Errorf("expected userName=carol, got %v", v)
	}
	if v, _ := e.Get("firstSku"); v != "a-1" {
		t.Errorf("expected firstSku=a-1, got %v", v)
	}
	if _, ok := e.Get("missing"); ok {
		t.Errorf("undefined paths must not be written")
	}
}

func TestExtract_ThenInterpolate(t *testing.T) {
	e := New()
	if err := e.Extract(map[string]string{"token": "body.token"}, []byte(`{"token":"abc123"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := e.Interpolate("Bearer {{token}}"); got != "Bearer abc123" {
		t.Errorf("expected extracted value visible to interpolation, got %q", got)
	}
}

func TestEvalBool(t *testing.T) {
	e := New()
	e.Set("count", 3)

	ok, err := e.EvalBool("count > 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Errorf("expected count > 2 to hold")
	}

	ok, err = e.EvalBool("count > 10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected count > 10 to fail")
	}

	// Missing variables evaluate to nil, not a compile error.
	ok, err = e.EvalBool("unknownVar == nil")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Errorf("expected missing variable to compare equal to nil")
	}

	if _, err := e.EvalBool("count + 1"); err == nil {
		t.Errorf("expected error for non-boolean expression")
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{true, "true"},
		{float64(42), "42"},
		{float64(1.5), "1.5"},
		{nil, ""},
		{map[string]any{"a": float64(1)}, `{"a":1}`},
	}
	for _, tc := range cases {
		if got := FormatValue(tc.in); got != tc.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
