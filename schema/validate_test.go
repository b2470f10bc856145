package schema

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const fullOptions = `{
	"command": "Compile", "root": "main", "mangler": "escape",
	"sourcemap": true, "imports": true, "condcomp": true, "generics": false,
	"strip": false, "lower": true, "validate": true, "naga": false, "lazy": true,
	"keep_root": false, "mangle_root": false, "features": {"a": true},
	"runtime": false, "expr": "", "overrides": {}, "binding_structs": false
}`

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := Decode([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func validationPath(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	return verr.Path
}

func TestValidateFiles(t *testing.T) {
	files, err := ValidateFiles(mustDecode(t, `[{"name":"main","source":"fn f() {}"},{"name":"util","source":""}]`))
	if err != nil {
		t.Fatal(err)
	}
	want := Files{{Name: "main", Source: "fn f() {}"}, {Name: "util", Source: ""}}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateFiles_Errors(t *testing.T) {
	tests := []struct {
		in   string
		path string
	}{
		{`{}`, "$"},
		{`[1]`, "$[0]"},
		{`[{"name":"a","source":"x"},{"source":"x"}]`, "$[1].name"},
		{`[{"name":"a","source":3}]`, "$[0].source"},
		{`[{"name":"a","source":""},{"name":"a","source":""}]`, "$[1].name"},
	}
	for _, tt := range tests {
		_, err := ValidateFiles(mustDecode(t, tt.in))
		if got := validationPath(t, err); got != tt.path {
			t.Errorf("%s: path = %q, want %q", tt.in, got, tt.path)
		}
	}
}

func TestValidateOptions(t *testing.T) {
	o, err := ValidateOptions(mustDecode(t, fullOptions))
	if err != nil {
		t.Fatal(err)
	}
	if o.Command != CommandCompile || o.Root != "main" || o.Mangler != ManglerEscape {
		t.Fatalf("unexpected options: %+v", o)
	}
	if !o.Features["a"] || o.Keep != nil {
		t.Fatalf("features/keep: %+v %+v", o.Features, o.Keep)
	}
}

func TestValidateOptions_MissingField(t *testing.T) {
	_, err := ValidateOptions(mustDecode(t, `{"command":"Compile"}`))
	if got := validationPath(t, err); got != "$.root" {
		t.Fatalf("path = %q", got)
	}
}

func TestValidateOptions_BadFeature(t *testing.T) {
	v := mustDecode(t, fullOptions).(map[string]any)
	v["features"] = map[string]any{"x": "yes"}
	_, err := ValidateOptions(v)
	if got := validationPath(t, err); got != "$.features.x" {
		t.Fatalf("path = %q", got)
	}
}

func TestValidatePartialOptions(t *testing.T) {
	p, err := ValidatePartialOptions(mustDecode(t, `{"imports": false, "keep": ["a", "b"], "unknown": 1}`))
	if err != nil {
		t.Fatal(err)
	}
	base := Options{Imports: true, Features: map[string]bool{}}
	got := p.Apply(base)
	if got.Imports {
		t.Fatal("imports should be overridden")
	}
	if diff := cmp.Diff([]string{"a", "b"}, got.Keep); diff != "" {
		t.Fatal(diff)
	}
	if !base.Imports {
		t.Fatal("Apply must not mutate its receiver's base")
	}
}

func TestValidateOptionParam(t *testing.T) {
	p, err := ValidateOptionParam("imports", "false")
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := p["imports"]; !ok || v != false {
		t.Fatalf("patch = %#v", p)
	}

	if _, err := ValidateOptionParam("imports", `"no"`); validationPath(t, err) != "imports" {
		t.Fatal("expected type error on imports")
	}
	if _, err := ValidateOptionParam("imports", `{`); validationPath(t, err) != "imports" {
		t.Fatal("expected malformed JSON error on imports")
	}
	if _, err := ValidateOptionParam("bogus", `true`); err == nil {
		t.Fatal("expected unknown option error")
	}
}

func TestValidateSnapshot_LinkerAlias(t *testing.T) {
	raw := `{"files":[{"name":"main","source":""}],"linker":"wesl-js","options":` + fullOptions + `}`
	s, err := ParseSnapshot([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if s.Backend != BackendJs {
		t.Fatalf("backend = %q", s.Backend)
	}
}

func TestValidateSnapshot_UnknownBackend(t *testing.T) {
	raw := `{"files":[],"backend":"wesl-go","options":` + fullOptions + `}`
	_, err := ParseSnapshot([]byte(raw))
	if got := validationPath(t, err); got != "$.backend" {
		t.Fatalf("path = %q", got)
	}
}

func TestUntyped(t *testing.T) {
	in := Snapshot{
		Files:   Files{{Name: "main", Source: "x"}},
		Backend: BackendRs,
		Options: Options{Command: CommandCompile, Features: map[string]bool{}, Overrides: map[string]string{}},
	}
	v, err := Untyped(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ValidateSnapshot(v)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFeatures(t *testing.T) {
	got := ParseFeatures("a=true, b=0 ,c, d=false, e=, =x")
	want := map[string]bool{"a": true, "b": false, "c": true, "d": false, "e": false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
	if s := FormatFeatures(want); s != "a=true, b=false, c=true, d=false, e=false" {
		t.Fatalf("FormatFeatures = %q", s)
	}
}

func TestParseKeep(t *testing.T) {
	if got := ParseKeep(" , "); got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}
	if diff := cmp.Diff([]string{"main", "helper"}, ParseKeep("main, helper,")); diff != "" {
		t.Fatal(diff)
	}
}
