package schema

import (
	"fmt"
	"slices"
	"strings"
)

// FormatFeatures renders features as "name=bool, ..." sorted by name.
func FormatFeatures(features map[string]bool) string {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%t", name, features[name])
	}
	return strings.Join(parts, ", ")
}

// ParseFeatures parses the comma-separated feature list typed by the user.
// A bare name enables the feature; "false", "0" and an empty value disable it.
func ParseFeatures(s string) map[string]bool {
	features := map[string]bool{}
	for _, item := range strings.Split(s, ",") {
		name, value, hasValue := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !hasValue {
			features[name] = true
			continue
		}
		value = strings.TrimSpace(value)
		features[name] = value != "" && value != "false" && value != "0"
	}
	return features
}

// FormatKeep renders the keep list as "a, b".
func FormatKeep(keep []string) string {
	return strings.Join(keep, ", ")
}

// ParseKeep parses a comma-separated declaration list. It returns nil when no
// name is present so that an empty field means "keep nothing in particular".
func ParseKeep(s string) []string {
	var keep []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			keep = append(keep, item)
		}
	}
	return keep
}
