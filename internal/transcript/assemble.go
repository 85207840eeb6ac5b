// Package transcript assembles the cumulative session transcript from final
// recognition fragments.
package transcript

import "strings"

// Assemble joins final fragments in arrival order with single spaces.
func Assemble(fragments []string) string {
	return strings.Join(strings.Fields(strings.Join(fragments, " ")), " ")
}

// Preview appends live interim text to an assembled transcript for display.
func Preview(final string, interim string) string {
	final = strings.TrimSpace(final)
	interim = strings.Join(strings.Fields(interim), " ")
	switch {
	case interim == "":
		return final
	case final == "":
		return interim
	default:
		return final + " " + interim
	}
}
