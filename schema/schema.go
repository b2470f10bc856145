// Package schema holds the canonical shapes of a playground project and the
// validators that gate every piece of externally sourced data (local storage,
// remote snapshots, URL query parameters, navigation history payloads).
//
// Validators never produce defaults. They either return a value conforming
// exactly to the target shape or a *ValidationError naming the offending path.
package schema

import (
	"maps"
	"slices"
)

// File is one tab of the project.
type File struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Files is the ordered file list of a project.
type Files []File

// Clone returns a copy that shares no backing array with f.
func (f Files) Clone() Files {
	if f == nil {
		return nil
	}
	return slices.Clone(f)
}

// Names returns the file names in order.
func (f Files) Names() []string {
	names := make([]string, len(f))
	for i, file := range f {
		names[i] = file.Name
	}
	return names
}

// Index returns the position of the file called name, or -1.
func (f Files) Index(name string) int {
	return slices.IndexFunc(f, func(file File) bool { return file.Name == name })
}

// Backend selects the compiler implementation.
type Backend string

const (
	BackendRs Backend = "wesl-rs"
	BackendJs Backend = "wesl-js"
)

// Backends lists every valid Backend in display order.
var Backends = []Backend{BackendRs, BackendJs}

// Valid reports whether b is one of the known backends.
func (b Backend) Valid() bool {
	return slices.Contains(Backends, b)
}

// Command is the action requested from the backend.
type Command string

const (
	CommandCompile Command = "Compile"
	CommandEval    Command = "Eval"
)

// Mangler is a name-mangling scheme. The valid set depends on the backend.
type Mangler string

const (
	ManglerEscape Mangler = "escape"
	ManglerHash   Mangler = "hash"
	ManglerNone   Mangler = "none"
)

// Options is the flat record of user settings. Root and the autorun flag are
// backend-agnostic; everything else is interpreted by the active backend.
type Options struct {
	Command Command `json:"command"`

	Root           string          `json:"root"`
	Mangler        Mangler         `json:"mangler"`
	Sourcemap      bool            `json:"sourcemap"`
	Imports        bool            `json:"imports"`
	Condcomp       bool            `json:"condcomp"`
	Generics       bool            `json:"generics"`
	Strip          bool            `json:"strip"`
	Lower          bool            `json:"lower"`
	Validate       bool            `json:"validate"`
	Naga           bool            `json:"naga"`
	Lazy           bool            `json:"lazy"`
	Keep           []string        `json:"keep"`
	KeepRoot       bool            `json:"keep_root"`
	MangleRoot     bool            `json:"mangle_root"`
	Features       map[string]bool `json:"features"`
	BindingStructs bool            `json:"binding_structs"`

	// Eval arguments.
	Runtime   bool              `json:"runtime"`
	Expr      string            `json:"expr"`
	Overrides map[string]string `json:"overrides"`
}

// Clone returns a deep copy of o.
func (o Options) Clone() Options {
	c := o
	c.Keep = slices.Clone(o.Keep)
	c.Features = maps.Clone(o.Features)
	c.Overrides = maps.Clone(o.Overrides)
	if c.Features == nil {
		c.Features = map[string]bool{}
	}
	if c.Overrides == nil {
		c.Overrides = map[string]string{}
	}
	return c
}

// Snapshot is the full serializable state of one playground session.
type Snapshot struct {
	Files   Files   `json:"files"`
	Backend Backend `json:"backend"`
	Options Options `json:"options"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Files:   s.Files.Clone(),
		Backend: s.Backend,
		Options: s.Options.Clone(),
	}
}
