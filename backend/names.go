package backend

import "strings"

// ModulePath returns the relative module path backends key a file under:
// "util" becomes "./util.wesl".
func ModulePath(name string) string {
	return "./" + name + ".wesl"
}

// FileName maps a backend module path back to a project file name. It is
// the inverse of ModulePath and leaves other names untouched.
func FileName(path string) string {
	path = strings.TrimPrefix(path, "./")
	return strings.TrimSuffix(path, ".wesl")
}
