// Package weslrs adapts the project shape to the wesl-rs compiler. wesl-rs
// takes one command document carrying every option plus a map of module
// paths to sources, and answers with the output text or an error document
// {source, message, diagnostics}.
package weslrs

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/schema"
)

// Service is the Router service name of wesl-rs.
const Service = "wesl-rs"

// Request is the wesl-rs command document.
type Request struct {
	Command    schema.Command    `json:"command"`
	Files      map[string]string `json:"files"`
	Root       string            `json:"root"`
	Mangler    schema.Mangler    `json:"mangler,omitempty"`
	Sourcemap  bool              `json:"sourcemap"`
	Imports    bool              `json:"imports"`
	Condcomp   bool              `json:"condcomp"`
	Generics   bool              `json:"generics"`
	Strip      bool              `json:"strip"`
	Lower      bool              `json:"lower"`
	Validate   bool              `json:"validate"`
	Naga       bool              `json:"naga"`
	Lazy       bool              `json:"lazy"`
	Keep       []string          `json:"keep,omitempty"`
	KeepRoot   bool              `json:"keep_root"`
	MangleRoot bool              `json:"mangle_root"`
	Features   map[string]bool   `json:"features"`

	Expression string `json:"expression,omitempty"`
}

// ErrorDoc is the error document wesl-rs raises.
type ErrorDoc struct {
	Source      *string              `json:"source"`
	Message     string               `json:"message"`
	Diagnostics []backend.Diagnostic `json:"diagnostics"`
}

// Adapter implements backend.Adapter for wesl-rs.
type Adapter struct{}

// New returns the wesl-rs adapter.
func New() *Adapter { return &Adapter{} }

func (*Adapter) Backend() schema.Backend { return schema.BackendRs }

func (*Adapter) Service() string { return Service }

// wesl-rs runs naga itself when asked to.
func (*Adapter) ExternalValidation() bool { return false }

// TranslateRequest builds the command document. Keep is only sent when
// strip is on, and an unsupported mangler is replaced by the default.
func (a *Adapter) TranslateRequest(files schema.Files, opts schema.Options) ([]byte, error) {
	switch opts.Command {
	case schema.CommandCompile, schema.CommandEval:
	default:
		return nil, &backend.UnsupportedCommandError{Backend: schema.BackendRs, Command: opts.Command}
	}

	req := Request{
		Command:    opts.Command,
		Files:      make(map[string]string, len(files)),
		Root:       opts.Root,
		Mangler:    backend.NormalizeMangler(schema.BackendRs, opts.Mangler),
		Sourcemap:  opts.Sourcemap,
		Imports:    opts.Imports,
		Condcomp:   opts.Condcomp,
		Generics:   opts.Generics,
		Strip:      opts.Strip,
		Lower:      opts.Lower,
		Validate:   opts.Validate,
		Naga:       opts.Naga,
		Lazy:       opts.Lazy,
		KeepRoot:   opts.KeepRoot,
		MangleRoot: opts.MangleRoot,
		Features:   maps.Clone(opts.Features),
	}
	if req.Features == nil {
		req.Features = map[string]bool{}
	}
	for _, f := range files {
		req.Files[backend.ModulePath(f.Name)] = f.Source
	}
	if opts.Strip && len(opts.Keep) > 0 {
		req.Keep = opts.Keep
	}
	if opts.Command == schema.CommandEval {
		req.Expression = opts.Expr
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("weslrs: encode request: %w", err)
	}
	return data, nil
}

// TranslateResult maps the wesl-rs answer. A success body is the output,
// either as a JSON string or as raw text. A *backend.Fault carries the error
// document; an unreadable one becomes a Failure with the raw text.
func (a *Adapter) TranslateResult(resp []byte, callErr error) backend.Result {
	if callErr == nil {
		return backend.Success(decodeOutput(resp))
	}

	var fault *backend.Fault
	if !errors.As(callErr, &fault) {
		return backend.Failure(callErr.Error(), "", nil)
	}

	var doc ErrorDoc
	if err := json.Unmarshal(fault.Body, &doc); err != nil || doc.Message == "" {
		return backend.Failure(strings.TrimSpace(string(fault.Body)), "", nil)
	}
	diags := make([]backend.Diagnostic, 0, len(doc.Diagnostics))
	for _, d := range doc.Diagnostics {
		d.File = backend.FileName(d.File)
		diags = append(diags, d)
	}
	partial := ""
	if doc.Source != nil {
		partial = *doc.Source
	}
	return backend.Failure(doc.Message, partial, diags)
}

func decodeOutput(resp []byte) string {
	var s string
	if err := json.Unmarshal(resp, &s); err == nil {
		return s
	}
	return string(resp)
}
