package runner

import (
	"maps"
	"regexp"
)

// placeholderRe matches {{name}} with optional whitespace inside the braces.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// MergeVariables overlays overrides on defaults, last write wins per key.
// Neither input is mutated.
func MergeVariables(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	maps.Copy(merged, defaults)
	maps.Copy(merged, overrides)
	return merged
}

// Substitute replaces each {{key}} placeholder in template with its value
// from vars. Placeholders with no matching key are left verbatim; this is
// not an error.
func Substitute(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}
