package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// ValidationError reports the first path at which a value failed to match its
// expected shape. Path uses dotted keys and [i] indices, rooted at "$".
type ValidationError struct {
	Path   string
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

func invalid(path, format string, args ...any) *ValidationError {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func child(path, key string) string { return path + "." + key }

func index(path string, i int) string { return path + "[" + strconv.Itoa(i) + "]" }

// Decode parses raw JSON into an untyped value suitable for the Validate*
// functions. Malformed JSON is reported as a ValidationError at "$".
func Decode(data []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&v); err != nil {
		return nil, &ValidationError{Path: "$", Reason: "malformed JSON", Cause: err}
	}
	if dec.More() {
		return nil, invalid("$", "trailing data after JSON value")
	}
	return v, nil
}

// Untyped converts a Go value into the untyped JSON form accepted by the
// Validate* functions. It is used on payloads that arrive as Go values but
// are still untrusted, such as navigation-history state.
func Untyped(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &ValidationError{Path: "$", Reason: "not representable as JSON", Cause: err}
	}
	return Decode(data)
}

func asObject(path string, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid(path, "expected object, got %s", kindOf(v))
	}
	return m, nil
}

func asString(path string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid(path, "expected string, got %s", kindOf(v))
	}
	return s, nil
}

func asBool(path string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, invalid(path, "expected boolean, got %s", kindOf(v))
	}
	return b, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ValidateFiles checks v against the Files shape.
func ValidateFiles(v any) (Files, error) {
	return validateFiles("$", v)
}

func validateFiles(path string, v any) (Files, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, invalid(path, "expected array, got %s", kindOf(v))
	}
	files := make(Files, 0, len(arr))
	for i, item := range arr {
		p := index(path, i)
		obj, err := asObject(p, item)
		if err != nil {
			return nil, err
		}
		var f File
		if f.Name, err = requiredString(p, obj, "name"); err != nil {
			return nil, err
		}
		if f.Source, err = requiredString(p, obj, "source"); err != nil {
			return nil, err
		}
		if files.Index(f.Name) >= 0 {
			return nil, invalid(child(p, "name"), "duplicate file name %q", f.Name)
		}
		files = append(files, f)
	}
	return files, nil
}

func requiredString(path string, obj map[string]any, key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", invalid(child(path, key), "required")
	}
	return asString(child(path, key), v)
}

// ValidateBackend checks v against the closed Backend enumeration.
func ValidateBackend(v any) (Backend, error) {
	return validateBackend("$", v)
}

func validateBackend(path string, v any) (Backend, error) {
	s, err := asString(path, v)
	if err != nil {
		return "", err
	}
	b := Backend(s)
	if !b.Valid() {
		return "", invalid(path, "unknown backend %q", s)
	}
	return b, nil
}

// optionField describes one member of the Options shape.
type optionField struct {
	name     string
	optional bool
	check    func(path string, v any) (any, error)
	assign   func(o *Options, v any)
}

func boolField(name string, set func(o *Options, b bool)) optionField {
	return optionField{
		name: name,
		check: func(path string, v any) (any, error) {
			return asBool(path, v)
		},
		assign: func(o *Options, v any) { set(o, v.(bool)) },
	}
}

func stringField(name string, set func(o *Options, s string)) optionField {
	return optionField{
		name: name,
		check: func(path string, v any) (any, error) {
			return asString(path, v)
		},
		assign: func(o *Options, v any) { set(o, v.(string)) },
	}
}

var optionFields = []optionField{
	stringField("command", func(o *Options, s string) { o.Command = Command(s) }),
	stringField("root", func(o *Options, s string) { o.Root = s }),
	stringField("mangler", func(o *Options, s string) { o.Mangler = Mangler(s) }),
	boolField("sourcemap", func(o *Options, b bool) { o.Sourcemap = b }),
	boolField("imports", func(o *Options, b bool) { o.Imports = b }),
	boolField("condcomp", func(o *Options, b bool) { o.Condcomp = b }),
	boolField("generics", func(o *Options, b bool) { o.Generics = b }),
	boolField("strip", func(o *Options, b bool) { o.Strip = b }),
	boolField("lower", func(o *Options, b bool) { o.Lower = b }),
	boolField("validate", func(o *Options, b bool) { o.Validate = b }),
	boolField("naga", func(o *Options, b bool) { o.Naga = b }),
	boolField("lazy", func(o *Options, b bool) { o.Lazy = b }),
	{
		name:     "keep",
		optional: true,
		check: func(path string, v any) (any, error) {
			if v == nil {
				return []string(nil), nil
			}
			arr, ok := v.([]any)
			if !ok {
				return nil, invalid(path, "expected array, got %s", kindOf(v))
			}
			keep := make([]string, 0, len(arr))
			for i, item := range arr {
				s, err := asString(index(path, i), item)
				if err != nil {
					return nil, err
				}
				keep = append(keep, s)
			}
			return keep, nil
		},
		assign: func(o *Options, v any) { o.Keep = v.([]string) },
	},
	boolField("keep_root", func(o *Options, b bool) { o.KeepRoot = b }),
	boolField("mangle_root", func(o *Options, b bool) { o.MangleRoot = b }),
	{
		name: "features",
		check: func(path string, v any) (any, error) {
			obj, err := asObject(path, v)
			if err != nil {
				return nil, err
			}
			features := make(map[string]bool, len(obj))
			for k, item := range obj {
				b, err := asBool(child(path, k), item)
				if err != nil {
					return nil, err
				}
				features[k] = b
			}
			return features, nil
		},
		assign: func(o *Options, v any) { o.Features = v.(map[string]bool) },
	},
	boolField("runtime", func(o *Options, b bool) { o.Runtime = b }),
	stringField("expr", func(o *Options, s string) { o.Expr = s }),
	{
		name: "overrides",
		check: func(path string, v any) (any, error) {
			obj, err := asObject(path, v)
			if err != nil {
				return nil, err
			}
			overrides := make(map[string]string, len(obj))
			for k, item := range obj {
				s, err := asString(child(path, k), item)
				if err != nil {
					return nil, err
				}
				overrides[k] = s
			}
			return overrides, nil
		},
		assign: func(o *Options, v any) { o.Overrides = v.(map[string]string) },
	},
	boolField("binding_structs", func(o *Options, b bool) { o.BindingStructs = b }),
}

func lookupField(name string) (optionField, bool) {
	i := slices.IndexFunc(optionFields, func(f optionField) bool { return f.name == name })
	if i < 0 {
		return optionField{}, false
	}
	return optionFields[i], true
}

// OptionNames lists the JSON names of every Options field, in declaration
// order. Each is also the name of the matching URL query parameter.
func OptionNames() []string {
	names := make([]string, len(optionFields))
	for i, f := range optionFields {
		names[i] = f.name
	}
	return names
}

// ValidateOptions checks v against the full Options shape. Every field except
// keep is required; unknown keys are ignored.
func ValidateOptions(v any) (Options, error) {
	return validateOptions("$", v)
}

func validateOptions(path string, v any) (Options, error) {
	obj, err := asObject(path, v)
	if err != nil {
		return Options{}, err
	}
	var o Options
	for _, f := range optionFields {
		item, ok := obj[f.name]
		if !ok {
			if f.optional {
				continue
			}
			return Options{}, invalid(child(path, f.name), "required")
		}
		val, err := f.check(child(path, f.name), item)
		if err != nil {
			return Options{}, err
		}
		f.assign(&o, val)
	}
	return o, nil
}

// Patch is a validated subset of Options, keyed by JSON field name.
type Patch map[string]any

// Apply returns a copy of o with every field in p overwritten.
func (p Patch) Apply(o Options) Options {
	o = o.Clone()
	for name, v := range p {
		if f, ok := lookupField(name); ok {
			f.assign(&o, v)
		}
	}
	return o
}

// ValidatePartialOptions checks v against the Options shape with every field
// optional.
func ValidatePartialOptions(v any) (Patch, error) {
	obj, err := asObject("$", v)
	if err != nil {
		return nil, err
	}
	p := Patch{}
	for _, f := range optionFields {
		item, ok := obj[f.name]
		if !ok {
			continue
		}
		val, err := f.check(child("$", f.name), item)
		if err != nil {
			return nil, err
		}
		p[f.name] = val
	}
	return p, nil
}

// ValidateOptionParam validates a single JSON-encoded URL query parameter
// against the type of the option called name.
func ValidateOptionParam(name, raw string) (Patch, error) {
	f, ok := lookupField(name)
	if !ok {
		return nil, invalid(name, "unknown option")
	}
	v, err := Decode([]byte(raw))
	if err != nil {
		verr := err.(*ValidationError)
		verr.Path = name
		return nil, verr
	}
	val, err := f.check(name, v)
	if err != nil {
		return nil, err
	}
	return Patch{name: val}, nil
}

// ValidateSnapshot checks v against the Snapshot shape. Snapshots written by
// earlier clients name the backend "linker"; that key is accepted when
// "backend" is absent.
func ValidateSnapshot(v any) (Snapshot, error) {
	obj, err := asObject("$", v)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot

	files, ok := obj["files"]
	if !ok {
		return Snapshot{}, invalid("$.files", "required")
	}
	if s.Files, err = validateFiles("$.files", files); err != nil {
		return Snapshot{}, err
	}

	key := "backend"
	backend, ok := obj[key]
	if !ok {
		key = "linker"
		backend, ok = obj[key]
	}
	if !ok {
		return Snapshot{}, invalid("$.backend", "required")
	}
	if s.Backend, err = validateBackend(child("$", key), backend); err != nil {
		return Snapshot{}, err
	}

	options, ok := obj["options"]
	if !ok {
		return Snapshot{}, invalid("$.options", "required")
	}
	if s.Options, err = validateOptions("$.options", options); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// ParseSnapshot decodes and validates a JSON snapshot.
func ParseSnapshot(data []byte) (Snapshot, error) {
	v, err := Decode(data)
	if err != nil {
		return Snapshot{}, err
	}
	return ValidateSnapshot(v)
}
