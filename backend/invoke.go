package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/naga"

	"github.com/hazyhaar/weslplay/schema"
)

// Invoke runs one compile through a: it translates the request, calls the
// adapter's service on router and maps whatever comes back to a Result.
// It never returns an error and never panics.
func Invoke(ctx context.Context, router *Router, a Adapter, files schema.Files, opts schema.Options) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "backend: adapter panic", "backend", a.Backend(), "panic", p)
			res = Failure(fmt.Sprintf("%s: internal error: %v", a.Backend(), p), "", nil)
		}
	}()

	payload, err := a.TranslateRequest(files, opts)
	if err != nil {
		var uc *UnsupportedCommandError
		if errors.As(err, &uc) {
			return Failure(uc.Error(), "", nil)
		}
		return Failure(fmt.Sprintf("%s: %v", a.Backend(), err), "", nil)
	}

	resp, callErr := router.Call(ctx, a.Service(), payload)
	if errors.Is(callErr, ErrDisabled) {
		return Failure(fmt.Sprintf("%s: backend disabled", a.Backend()), "", nil)
	}
	var nf *ServiceNotFoundError
	if errors.As(callErr, &nf) {
		return Failure(fmt.Sprintf("%s: backend not available", a.Backend()), "", nil)
	}

	res = a.TranslateResult(resp, callErr)
	if res.OK && opts.Naga && a.ExternalValidation() {
		res = NagaValidate(res)
	}
	return res
}

// NagaValidate runs the naga WGSL front end over a successful result. A
// rejection turns the result into a Failure that keeps the output, with a
// diagnostic on the output pseudo file.
func NagaValidate(res Result) Result {
	if !res.OK {
		return res
	}
	if err := nagaCheck(res.Output); err != nil {
		msg := "naga: " + err.Error()
		return Failure(msg, res.Output, []Diagnostic{{
			File:  OutputFile,
			Span:  Span{Start: 0, End: len(res.Output)},
			Title: msg,
		}})
	}
	return res
}

func nagaCheck(src string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("validator crashed: %v", p)
		}
	}()
	_, err = naga.Compile(src)
	return err
}
