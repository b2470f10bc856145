// Package backend defines the canonical compile result, the Adapter contract
// implemented once per compiler backend, and the Router that carries
// translated requests to a backend living in-process or behind HTTP.
//
//	router := backend.NewRouter()
//	router.RegisterLocal(weslrs.Service, myHandler)
//	res := backend.Invoke(ctx, router, weslrs.New(), files, opts)
//
// Invoke is total: every outcome, including panics, transport failures and
// error documents the adapter cannot parse, becomes a Result.
package backend

import (
	"fmt"
	"slices"

	"github.com/hazyhaar/weslplay/schema"
)

// Span is a byte range into one file's source. Offsets are backend-local.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Diagnostic is one error location reported by a backend. File is a project
// file name, or OutputFile when the span points into the compiled output.
type Diagnostic struct {
	File  string `json:"file"`
	Span  Span   `json:"span"`
	Title string `json:"title"`
}

// OutputFile is the pseudo file name of the compiled output.
const OutputFile = "output"

// Result is the outcome of one compile. On success Output holds the compiled
// source. On failure Message is non-empty, Output holds whatever partial
// source the backend returned and Diagnostics may be empty.
type Result struct {
	OK          bool         `json:"ok"`
	Output      string       `json:"output"`
	Message     string       `json:"message,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Success builds a successful Result.
func Success(output string) Result {
	return Result{OK: true, Output: output, Diagnostics: []Diagnostic{}}
}

// Failure builds a failed Result. An empty message is replaced so that a
// failure is never silent.
func Failure(message, partial string, diags []Diagnostic) Result {
	if message == "" {
		message = "compilation failed"
	}
	if diags == nil {
		diags = []Diagnostic{}
	}
	return Result{Message: message, Output: partial, Diagnostics: diags}
}

// ForFile returns the diagnostics that point into file.
func (r Result) ForFile(file string) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.File == file {
			out = append(out, d)
		}
	}
	return out
}

// Adapter translates between the canonical project shape and one backend's
// own request and result shapes.
type Adapter interface {
	Backend() schema.Backend
	// Service is the Router service name the backend is reached under.
	Service() string
	// TranslateRequest returns the backend payload, or an
	// *UnsupportedCommandError when the command cannot be expressed.
	TranslateRequest(files schema.Files, opts schema.Options) ([]byte, error)
	// TranslateResult maps a response or a call error to a Result.
	TranslateResult(resp []byte, callErr error) Result
	// ExternalValidation reports whether the naga pass has to run on this
	// backend's output because the backend cannot run it itself.
	ExternalValidation() bool
}

var manglers = map[schema.Backend][]schema.Mangler{
	schema.BackendRs: {schema.ManglerEscape, schema.ManglerHash, schema.ManglerNone},
	schema.BackendJs: {schema.ManglerEscape, schema.ManglerNone},
}

// Manglers returns the schemes b supports; the first is its default.
func Manglers(b schema.Backend) []schema.Mangler {
	return slices.Clone(manglers[b])
}

// DefaultMangler returns the scheme used when a requested one is invalid.
func DefaultMangler(b schema.Backend) schema.Mangler {
	if m := manglers[b]; len(m) > 0 {
		return m[0]
	}
	return schema.ManglerEscape
}

// ValidMangler reports whether b supports m.
func ValidMangler(b schema.Backend, m schema.Mangler) bool {
	return slices.Contains(manglers[b], m)
}

// NormalizeMangler returns m when b supports it, else b's default.
func NormalizeMangler(b schema.Backend, m schema.Mangler) schema.Mangler {
	if ValidMangler(b, m) {
		return m
	}
	return DefaultMangler(b)
}

// UnsupportedCommandError is returned by TranslateRequest when a backend has
// no equivalent for the requested command.
type UnsupportedCommandError struct {
	Backend schema.Backend
	Command schema.Command
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("%s: command not supported: %s", e.Backend, e.Command)
}

// Fault is a structured error raised by a backend. Body is the backend's own
// error document, to be decoded by its Adapter.
type Fault struct {
	Body []byte
}

func (f *Fault) Error() string {
	return fmt.Sprintf("backend fault: %s", f.Body)
}
