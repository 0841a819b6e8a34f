// Package oscpath expands the path-type x alias x base/extended pattern
// matrix into the concrete OSC path set the dispatcher binds to. It is the
// literal Go counterpart of original_source/src/osc_kreuz/str_keys_conventions.py's
// osc_paths/osc_aliases tables and osccomcenter.py's build_osc_paths.
package oscpath

import "fmt"

// Type identifies which pattern table an expansion draws from.
type Type int

const (
	Position Type = iota
	Properties
	Gain
)

// aliasGroups maps a canonical renderer/value name to every alias that
// should receive its own expanded path. A value absent from this table
// bypasses alias expansion entirely and is used verbatim.
var aliasGroups = map[string][]string{
	"ambi":   {"hoa", "ambi", "ambisonics"},
	"wfs":    {"wfs", "wavefieldsynthesis"},
	"reverb": {"reverb", "rev"},
}

// ExpandAliases returns every alias string for value, or {value} itself if
// value names no known alias group.
func ExpandAliases(value string) []string {
	if aliases, ok := aliasGroups[value]; ok {
		out := make([]string, len(aliases))
		copy(out, aliases)
		return out
	}
	return []string{value}
}

var basePatterns = map[Type][]string{
	Position: {
		"/source/%s",
		"/source/pos/%s",
		"/source/position/%s",
	},
	Properties: {
		"/source/%s",
	},
	Gain: {
		"/source/send/%s",
		"/source/send/%s/gain",
		"/send/%s",
		"/send/%s/gain",
		"/source/%s",
		"/source/%s/gain",
	},
}

var extendedPatterns = map[Type][]string{
	Position: {
		"/source/%d/%s",
		"/source/%d/pos/%s",
		"/source/%d/position/%s",
	},
	Properties: {
		"/source/%d/%s",
	},
	Gain: {
		"/source/%d/send/%s",
		"/source/%d/send/%s/gain",
		"/send/%d/%s",
		"/send/%d/%s/gain",
		"/source/%d/%s",
		"/source/%d/%s/gain",
	},
}

// Expand produces every concrete OSC path for pathType and value. If idx is
// non-nil, the extended (per-source-index) pattern table is used and idx is
// substituted; otherwise the base table is used.
func Expand(pathType Type, value string, idx *int) []string {
	aliases := ExpandAliases(value)

	var out []string
	if idx == nil {
		for _, alias := range aliases {
			for _, pattern := range basePatterns[pathType] {
				out = append(out, fmt.Sprintf(pattern, alias))
			}
		}
		return out
	}
	for _, alias := range aliases {
		for _, pattern := range extendedPatterns[pathType] {
			out = append(out, fmt.Sprintf(pattern, *idx, alias))
		}
	}
	return out
}
