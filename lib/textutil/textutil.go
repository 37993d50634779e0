package textutil

import (
	"regexp"
	"strings"
)

// \s alone misses NBSP and the other unicode spaces bank markup uses
var whitespaceRegex = regexp.MustCompile(`[\s\p{Zs}]+`)

// NormalizeLabel lowercases a piece of on-screen text and strips all
// whitespace so labels can be compared regardless of markup formatting.
// Bank frontends shuffle NBSPs and line breaks between renders of the
// same label.
func NormalizeLabel(label string) string {
	label = strings.ToLower(label)
	label = strings.Trim(label, " \n\t")
	label = whitespaceRegex.ReplaceAllString(label, "")
	return label
}
