package weslrs

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/schema"
)

var files = schema.Files{
	{Name: "main", Source: "import super::util::my_fn;"},
	{Name: "util", Source: "fn my_fn() -> u32 { return 42; }"},
}

func decode(t *testing.T, data []byte) Request {
	t.Helper()
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatal(err)
	}
	return req
}

func TestTranslateRequest(t *testing.T) {
	opts := schema.Options{
		Command:  schema.CommandCompile,
		Root:     "main",
		Mangler:  schema.ManglerHash,
		Imports:  true,
		Keep:     []string{"main"},
		Features: map[string]bool{"debug": true},
	}
	data, err := New().TranslateRequest(files, opts)
	if err != nil {
		t.Fatal(err)
	}
	req := decode(t, data)

	want := map[string]string{
		"./main.wesl": files[0].Source,
		"./util.wesl": files[1].Source,
	}
	if diff := cmp.Diff(want, req.Files); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
	if req.Root != "main" || req.Mangler != schema.ManglerHash || !req.Imports {
		t.Fatalf("req = %+v", req)
	}
	if req.Keep != nil {
		t.Fatalf("keep sent without strip: %v", req.Keep)
	}
	if !req.Features["debug"] {
		t.Fatal("features dropped")
	}
}

func TestTranslateRequest_EvalAndKeep(t *testing.T) {
	opts := schema.Options{
		Command: schema.CommandEval,
		Root:    "main",
		Mangler: "underscore",
		Strip:   true,
		Keep:    []string{"main"},
		Expr:    "my_fn()",
	}
	data, err := New().TranslateRequest(files, opts)
	if err != nil {
		t.Fatal(err)
	}
	req := decode(t, data)
	if req.Expression != "my_fn()" || req.Command != schema.CommandEval {
		t.Fatalf("req = %+v", req)
	}
	if req.Mangler != schema.ManglerEscape {
		t.Fatalf("mangler = %q, want default", req.Mangler)
	}
	if diff := cmp.Diff([]string{"main"}, req.Keep); diff != "" {
		t.Fatal(diff)
	}
}

func TestTranslateRequest_Unsupported(t *testing.T) {
	_, err := New().TranslateRequest(files, schema.Options{Command: "Dump"})
	var uc *backend.UnsupportedCommandError
	if !errors.As(err, &uc) {
		t.Fatalf("err = %v", err)
	}
}

func TestTranslateResult(t *testing.T) {
	a := New()
	tests := []struct {
		name string
		resp []byte
		err  error
		want backend.Result
	}{
		{
			name: "json string",
			resp: []byte(`"fn main() -> u32 { return 42u; }"`),
			want: backend.Success("fn main() -> u32 { return 42u; }"),
		},
		{
			name: "raw text",
			resp: []byte("fn f() {}"),
			want: backend.Success("fn f() {}"),
		},
		{
			name: "error document",
			err: &backend.Fault{Body: []byte(`{"source":"partial","message":"unknown ident",
				"diagnostics":[{"file":"./util.wesl","span":{"start":3,"end":8},"title":"here"}]}`)},
			want: backend.Result{
				Output:  "partial",
				Message: "unknown ident",
				Diagnostics: []backend.Diagnostic{
					{File: "util", Span: backend.Span{Start: 3, End: 8}, Title: "here"},
				},
			},
		},
		{
			name: "malformed fault",
			err:  &backend.Fault{Body: []byte("thread panicked")},
			want: backend.Failure("thread panicked", "", nil),
		},
		{
			name: "plain error",
			err:  errors.New("connection refused"),
			want: backend.Failure("connection refused", "", nil),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.TranslateResult(tt.resp, tt.err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}
