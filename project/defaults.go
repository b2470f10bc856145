package project

import "github.com/hazyhaar/weslplay/schema"

// Storage keys of the persisted fields.
const (
	KeyFiles   = "files"
	KeyOptions = "options"
	KeyBackend = "backend"
)

// DefaultBackend is used when neither the URL nor storage names one.
const DefaultBackend = schema.BackendRs

// DefaultFiles returns the two-file starter project.
func DefaultFiles() schema.Files {
	return schema.Files{
		{
			Name:   "main",
			Source: "import super::util::my_fn;\nfn main() -> u32 {\n    return my_fn();\n}\n",
		},
		{Name: "util", Source: "fn my_fn() -> u32 { return 42; }"},
	}
}

// HealFile is the single file put back when the project becomes empty.
func HealFile() schema.File {
	return schema.File{Name: "main", Source: "fn main() -> u32 {\n    return 0u;\n}\n"}
}

// DefaultOptions returns the hard-coded option set.
func DefaultOptions() schema.Options {
	return schema.Options{
		Command:   schema.CommandCompile,
		Root:      "main",
		Mangler:   schema.ManglerEscape,
		Sourcemap: true,
		Imports:   true,
		Condcomp:  true,
		Lower:     true,
		Validate:  true,
		Lazy:      true,
		Features:  map[string]bool{},
		Overrides: map[string]string{},
	}
}
