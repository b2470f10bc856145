// Package project holds the live state of one playground session: the file
// list, the options, the selected backend, the active tab and the autorun
// flag. Each field is an observable cell reached through accessor and
// mutator methods.
//
// Two rules are enforced on every mutation. The file list is never left
// empty: emptying it puts back a single default file before any other
// observer runs. The mangler is always valid for the selected backend:
// switching backend resets an unsupported mangler to the backend default.
//
// When a localstore.Store is attached, files, options and backend are
// written to it once the initial values are resolved and again after every
// change.
package project

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/localstore"
	"github.com/hazyhaar/weslplay/reactive"
	"github.com/hazyhaar/weslplay/schema"
)

// Field names one observable part of the state.
type Field int

const (
	FieldFiles Field = iota
	FieldOptions
	FieldBackend
	FieldTab
	FieldAutorun
)

// Tracked lists the fields that make up a snapshot.
var Tracked = []Field{FieldFiles, FieldOptions, FieldBackend}

// State is the reactive project state. Mutators are meant to be called from
// one goroutine at a time; observers run synchronously inside them.
type State struct {
	files   *reactive.Cell[schema.Files]
	options *reactive.Cell[schema.Options]
	backend *reactive.Cell[schema.Backend]
	tab     *reactive.Cell[int]
	autorun *reactive.Cell[bool]

	store  *localstore.Store
	logger *slog.Logger
	stop   []func()
}

// Option configures a State.
type Option func(*State)

// WithStore attaches the persistent store used for initial values and
// autosave.
func WithStore(s *localstore.Store) Option {
	return func(st *State) { st.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(st *State) { st.logger = l }
}

// New builds the state. Each field takes its value from the URL query
// parameters when present and valid, else from the store, else from the
// defaults. Option parameters are JSON-encoded values named after the option
// ("imports=false"); the backend parameter is "backend", or "linker" for
// older links.
func New(params url.Values, opts ...Option) *State {
	s := &State{logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	files := DefaultFiles()
	options := DefaultOptions()
	be := DefaultBackend
	if s.store != nil {
		files = localstore.Get(s.store, KeyFiles, files, schema.ValidateFiles)
		options = localstore.Get(s.store, KeyOptions, options, schema.ValidateOptions)
		be = localstore.Get(s.store, KeyBackend, be, schema.ValidateBackend)
	}

	be = s.backendParam(params, be)
	options = s.optionParams(params, options)
	options.Mangler = backend.NormalizeMangler(be, options.Mangler)
	if len(files) == 0 {
		files = schema.Files{HealFile()}
	}

	s.files = reactive.NewCell(files)
	s.options = reactive.NewCell(options.Clone())
	s.backend = reactive.NewComparableCell(be)
	s.tab = reactive.NewComparableCell(0)
	s.autorun = reactive.NewComparableCell(true)

	s.stop = append(s.stop, s.files.Subscribe(s.heal))
	if s.store != nil {
		s.store.Put(KeyFiles, files)
		s.store.Put(KeyOptions, s.options.Get())
		s.store.Put(KeyBackend, be)
		s.stop = append(s.stop,
			reactive.Observe(func() { s.store.Put(KeyFiles, s.files.Get()) }, s.files),
			reactive.Observe(func() { s.store.Put(KeyOptions, s.options.Get()) }, s.options),
			reactive.Observe(func() { s.store.Put(KeyBackend, s.backend.Get()) }, s.backend),
		)
	}
	return s
}

func (s *State) backendParam(params url.Values, def schema.Backend) schema.Backend {
	for _, key := range []string{"backend", "linker"} {
		if !params.Has(key) {
			continue
		}
		b, err := schema.ValidateBackend(params.Get(key))
		if err != nil {
			s.logger.Warn("project: ignoring url parameter", "param", key, "error", err)
			continue
		}
		return b
	}
	return def
}

func (s *State) optionParams(params url.Values, o schema.Options) schema.Options {
	for _, name := range schema.OptionNames() {
		if !params.Has(name) {
			continue
		}
		p, err := schema.ValidateOptionParam(name, params.Get(name))
		if err != nil {
			s.logger.Warn("project: ignoring url parameter", "param", name, "error", err)
			continue
		}
		o = p.Apply(o)
	}
	return o
}

// heal repopulates an empty project and keeps the tab index in range.
func (s *State) heal(files schema.Files) {
	if len(files) == 0 {
		s.logger.Debug("project: file list emptied, restoring default file")
		s.files.Set(schema.Files{HealFile()})
		return
	}
	if t := s.tab.Get(); t >= len(files) {
		s.tab.Set(len(files) - 1)
	}
}

// Close detaches the autosave and self-heal observers.
func (s *State) Close() {
	for _, stop := range s.stop {
		stop()
	}
	s.stop = nil
}

func (s *State) source(f Field) reactive.Source {
	switch f {
	case FieldFiles:
		return s.files
	case FieldOptions:
		return s.options
	case FieldBackend:
		return s.backend
	case FieldTab:
		return s.tab
	case FieldAutorun:
		return s.autorun
	}
	panic(fmt.Sprintf("project: unknown field %d", f))
}

func (s *State) sources(fields []Field) []reactive.Source {
	deps := make([]reactive.Source, len(fields))
	for i, f := range fields {
		deps[i] = s.source(f)
	}
	return deps
}

// Observe runs fn after every change of one of fields.
func (s *State) Observe(fn func(), fields ...Field) (cancel func()) {
	return reactive.Observe(fn, s.sources(fields)...)
}

// OnceChanged runs fn on the first change of one of fields.
func (s *State) OnceChanged(fn func(), fields ...Field) (cancel func()) {
	return reactive.Once(fn, s.sources(fields)...)
}

// Files returns a copy of the file list.
func (s *State) Files() schema.Files { return s.files.Get().Clone() }

// SetFiles replaces the file list. A name repeating an earlier one gets a
// numeric suffix, as in RenameFile.
func (s *State) SetFiles(files schema.Files) {
	files = files.Clone()
	for i := range files {
		files[i].Name = uniqueName(files[:i], files[i].Name, -1)
	}
	s.files.Set(files)
}

// Options returns a copy of the options.
func (s *State) Options() schema.Options { return s.options.Get().Clone() }

// SetOptions replaces the options. The mangler is normalized against the
// current backend.
func (s *State) SetOptions(o schema.Options) {
	o = o.Clone()
	o.Mangler = backend.NormalizeMangler(s.backend.Get(), o.Mangler)
	s.options.Set(o)
}

// PatchOptions applies a validated partial update.
func (s *State) PatchOptions(p schema.Patch) {
	s.SetOptions(p.Apply(s.options.Get()))
}

// Backend returns the selected backend.
func (s *State) Backend() schema.Backend { return s.backend.Get() }

// SetBackend selects b and resets the mangler if b does not support it.
func (s *State) SetBackend(b schema.Backend) error {
	if !b.Valid() {
		return fmt.Errorf("project: unknown backend %q", b)
	}
	if b == s.backend.Get() {
		return nil
	}
	// The options go first so no observer sees b with an unsupported mangler.
	if o := s.options.Get(); !backend.ValidMangler(b, o.Mangler) {
		s.logger.Debug("project: mangler reset on backend switch", "backend", b, "from", o.Mangler)
		o = o.Clone()
		o.Mangler = backend.DefaultMangler(b)
		s.options.Set(o)
	}
	s.backend.Set(b)
	return nil
}

// Tab returns the active file index.
func (s *State) Tab() int { return s.tab.Get() }

// SetTab selects the active file.
func (s *State) SetTab(i int) error {
	if i < 0 || i >= len(s.files.Get()) {
		return fmt.Errorf("project: tab %d out of range", i)
	}
	s.tab.Set(i)
	return nil
}

// Autorun reports whether edits trigger compiles.
func (s *State) Autorun() bool { return s.autorun.Get() }

// SetAutorun sets the autorun flag.
func (s *State) SetAutorun(on bool) { s.autorun.Set(on) }

// Source returns the source of the active file, or "".
func (s *State) Source() string {
	files := s.files.Get()
	if t := s.tab.Get(); t >= 0 && t < len(files) {
		return files[t].Source
	}
	return ""
}

// SetSource replaces the source of the active file.
func (s *State) SetSource(src string) {
	files := s.files.Get().Clone()
	t := s.tab.Get()
	if t < 0 || t >= len(files) {
		return
	}
	files[t].Source = src
	s.files.Set(files)
}

// SetFileSource replaces the source of file i.
func (s *State) SetFileSource(i int, src string) error {
	files := s.files.Get().Clone()
	if i < 0 || i >= len(files) {
		return fmt.Errorf("project: file %d out of range", i)
	}
	files[i].Source = src
	s.files.Set(files)
	return nil
}

// NewFile appends an empty file named tab<N+1> and selects it.
func (s *State) NewFile() int {
	files := s.files.Get().Clone()
	name := uniqueName(files, "tab"+strconv.Itoa(len(files)+1), -1)
	files = append(files, schema.File{Name: name})
	s.files.Set(files)
	s.tab.Set(len(files) - 1)
	return len(files) - 1
}

// DeleteFile removes file i. Deleting the last file leaves the healed
// default in its place.
func (s *State) DeleteFile(i int) error {
	files := s.files.Get()
	if i < 0 || i >= len(files) {
		return fmt.Errorf("project: file %d out of range", i)
	}
	s.files.Set(slices.Delete(files.Clone(), i, i+1))
	return nil
}

// RenameFile renames file i. A name already used by another file gets a
// numeric suffix.
func (s *State) RenameFile(i int, name string) (string, error) {
	files := s.files.Get().Clone()
	if i < 0 || i >= len(files) {
		return "", fmt.Errorf("project: file %d out of range", i)
	}
	if name == "" {
		return "", fmt.Errorf("project: empty file name")
	}
	name = uniqueName(files, name, i)
	files[i].Name = name
	s.files.Set(files)
	return name, nil
}

func uniqueName(files schema.Files, name string, self int) string {
	taken := func(n string) bool {
		j := files.Index(n)
		return j >= 0 && j != self
	}
	if !taken(name) {
		return name
	}
	for n := 2; ; n++ {
		if c := name + strconv.Itoa(n); !taken(c) {
			return c
		}
	}
}

// Reset restores the default files and options and selects the first tab.
func (s *State) Reset() {
	s.files.Set(DefaultFiles())
	s.tab.Set(0)
	s.SetOptions(DefaultOptions())
}

// Snapshot returns the shareable part of the state.
func (s *State) Snapshot() schema.Snapshot {
	return schema.Snapshot{
		Files:   s.Files(),
		Backend: s.Backend(),
		Options: s.Options(),
	}
}

// Load overwrites the state with snap. The snapshot is assumed validated.
func (s *State) Load(snap schema.Snapshot) {
	snap = snap.Clone()
	s.files.Set(snap.Files)
	s.tab.Set(0)
	if snap.Backend.Valid() {
		s.backend.Set(snap.Backend)
	}
	s.SetOptions(snap.Options)
}
