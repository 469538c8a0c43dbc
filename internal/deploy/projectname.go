package deploy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxProjectName     = 50
	defaultProjectName = "site"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var apostrophes = strings.NewReplacer("'", "", "’", "", "`", "")

// ProjectName derives a DNS-safe hosting project name from a shop name:
// accents folded to ASCII, lowercase, apostrophes dropped, every other run of
// non-alphanumerics collapsed to one "-", no leading or trailing "-", at most
// 50 characters. An input with nothing usable becomes "site".
func ProjectName(seed string) string {
	// transformers carry state, so build one per call
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	s, _, err := transform.String(fold, seed)
	if err != nil {
		s = seed
	}

	s = apostrophes.Replace(strings.ToLower(s))
	s = strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")

	if len(s) > maxProjectName {
		s = strings.TrimRight(s[:maxProjectName], "-")
	}
	if s == "" {
		return defaultProjectName
	}
	return s
}
