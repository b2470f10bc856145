package backend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/weslplay/schema"
)

// stubAdapter passes the payload through and reports call errors verbatim.
type stubAdapter struct {
	external bool
	reject   bool
}

func (stubAdapter) Backend() schema.Backend { return schema.BackendRs }
func (stubAdapter) Service() string         { return "stub" }
func (s stubAdapter) ExternalValidation() bool {
	return s.external
}

func (s stubAdapter) TranslateRequest(files schema.Files, opts schema.Options) ([]byte, error) {
	if s.reject {
		return nil, &UnsupportedCommandError{Backend: schema.BackendRs, Command: opts.Command}
	}
	return []byte(files[0].Source), nil
}

func (stubAdapter) TranslateResult(resp []byte, callErr error) Result {
	if callErr != nil {
		return Failure(callErr.Error(), "", nil)
	}
	return Success(string(resp))
}

var stubFiles = schema.Files{{Name: "main", Source: "src"}}

func TestInvoke_PlainError(t *testing.T) {
	r := NewRouter()
	r.RegisterLocal("stub", func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("unstructured")
	})
	res := Invoke(context.Background(), r, stubAdapter{}, stubFiles, schema.Options{})
	if res.OK || res.Message == "" {
		t.Fatalf("res = %+v", res)
	}
	if res.Diagnostics == nil || len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %#v, want empty", res.Diagnostics)
	}
}

func TestInvoke_Success(t *testing.T) {
	r := NewRouter()
	r.RegisterLocal("stub", echo("out:"))
	res := Invoke(context.Background(), r, stubAdapter{}, stubFiles, schema.Options{})
	if !res.OK || res.Output != "out:src" {
		t.Fatalf("res = %+v", res)
	}
}

func TestInvoke_Unsupported(t *testing.T) {
	r := NewRouter()
	res := Invoke(context.Background(), r, stubAdapter{reject: true}, stubFiles, schema.Options{Command: "Exec"})
	if res.OK || !strings.Contains(res.Message, "not supported") {
		t.Fatalf("res = %+v", res)
	}
}

func TestInvoke_Missing(t *testing.T) {
	res := Invoke(context.Background(), NewRouter(), stubAdapter{}, stubFiles, schema.Options{})
	if res.OK || !strings.Contains(res.Message, "not available") {
		t.Fatalf("res = %+v", res)
	}
}

func TestInvoke_HandlerPanic(t *testing.T) {
	r := NewRouter()
	r.RegisterLocal("stub", func(context.Context, []byte) ([]byte, error) { panic("kaboom") })
	res := Invoke(context.Background(), r, stubAdapter{}, stubFiles, schema.Options{})
	if res.OK || !strings.Contains(res.Message, "kaboom") {
		t.Fatalf("res = %+v", res)
	}
}

func TestInvoke_NagaPass(t *testing.T) {
	r := NewRouter()
	r.RegisterLocal("stub", func(context.Context, []byte) ([]byte, error) {
		return []byte("fn main( -> {"), nil
	})
	opts := schema.Options{Naga: true}

	res := Invoke(context.Background(), r, stubAdapter{external: true}, stubFiles, opts)
	if res.OK {
		t.Fatal("naga accepted garbage")
	}
	if res.Output != "fn main( -> {" {
		t.Fatalf("partial output lost: %q", res.Output)
	}
	if d := res.ForFile(OutputFile); len(d) != 1 {
		t.Fatalf("output diagnostics = %+v", res.Diagnostics)
	}

	res = Invoke(context.Background(), r, stubAdapter{external: false}, stubFiles, opts)
	if !res.OK {
		t.Fatalf("naga ran for a self-validating backend: %+v", res)
	}
}

func TestManglers(t *testing.T) {
	if DefaultMangler(schema.BackendJs) != schema.ManglerEscape {
		t.Fatal("wesl-js default")
	}
	if ValidMangler(schema.BackendJs, schema.ManglerHash) {
		t.Fatal("wesl-js accepts hash")
	}
	if got := NormalizeMangler(schema.BackendJs, schema.ManglerHash); got != schema.ManglerEscape {
		t.Fatalf("normalize = %s", got)
	}
	if got := NormalizeMangler(schema.BackendRs, schema.ManglerHash); got != schema.ManglerHash {
		t.Fatalf("normalize = %s", got)
	}
}

func TestFailure_NeverSilent(t *testing.T) {
	res := Failure("", "", nil)
	if res.Message == "" || res.Diagnostics == nil {
		t.Fatalf("res = %+v", res)
	}
}

func TestModulePath(t *testing.T) {
	if ModulePath("util") != "./util.wesl" || FileName("./util.wesl") != "util" || FileName(OutputFile) != OutputFile {
		t.Fatal("module path mapping")
	}
}
