// Package wesljs adapts the project shape to the wesl-js linker. wesl-js only
// links (no Eval), takes the root as a module path and the features as link
// conditions, and answers with {dest}. Its errors carry no location data.
package wesljs

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/schema"
)

// Service is the Router service name of wesl-js.
const Service = "wesl-js"

// MangleUnderscore is the wesl-js mangler used for the escape scheme.
const MangleUnderscore = "underscore"

// LinkParams is the wesl-js link request.
type LinkParams struct {
	WeslSrc        map[string]string `json:"weslSrc"`
	RootModuleName string            `json:"rootModuleName"`
	Conditions     map[string]bool   `json:"conditions"`
	Mangler        string            `json:"mangler,omitempty"`
}

// LinkResult is the part of the wesl-js answer the playground reads.
type LinkResult struct {
	Dest *string `json:"dest"`
}

type errorDoc struct {
	Message string `json:"message"`
}

// Adapter implements backend.Adapter for wesl-js.
type Adapter struct{}

// New returns the wesl-js adapter.
func New() *Adapter { return &Adapter{} }

func (*Adapter) Backend() schema.Backend { return schema.BackendJs }

func (*Adapter) Service() string { return Service }

// wesl-js has no validator of its own.
func (*Adapter) ExternalValidation() bool { return true }

// TranslateRequest builds the link parameters. Only Compile is supported.
func (a *Adapter) TranslateRequest(files schema.Files, opts schema.Options) ([]byte, error) {
	if opts.Command != schema.CommandCompile {
		return nil, &backend.UnsupportedCommandError{Backend: schema.BackendJs, Command: opts.Command}
	}

	p := LinkParams{
		WeslSrc:        make(map[string]string, len(files)),
		RootModuleName: backend.ModulePath(opts.Root),
		Conditions:     maps.Clone(opts.Features),
	}
	if p.Conditions == nil {
		p.Conditions = map[string]bool{}
	}
	for _, f := range files {
		p.WeslSrc[backend.ModulePath(f.Name)] = f.Source
	}
	if backend.NormalizeMangler(schema.BackendJs, opts.Mangler) == schema.ManglerEscape {
		p.Mangler = MangleUnderscore
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("wesljs: encode request: %w", err)
	}
	return data, nil
}

// TranslateResult maps the link answer. A body without dest is treated as a
// failure rather than an empty output.
func (a *Adapter) TranslateResult(resp []byte, callErr error) backend.Result {
	if callErr != nil {
		var fault *backend.Fault
		if errors.As(callErr, &fault) {
			var doc errorDoc
			if err := json.Unmarshal(fault.Body, &doc); err == nil && doc.Message != "" {
				return backend.Failure(doc.Message, "", nil)
			}
			return backend.Failure(string(fault.Body), "", nil)
		}
		return backend.Failure(callErr.Error(), "", nil)
	}

	var res LinkResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return backend.Failure(fmt.Sprintf("wesl-js: malformed response: %v", err), "", nil)
	}
	if res.Dest == nil {
		return backend.Failure("wesl-js: response has no output", "", nil)
	}
	return backend.Success(*res.Dest)
}
