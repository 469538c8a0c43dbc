package publish

import (
	"context"
	"regexp"
	"strings"

	"github.com/primebarber/site-backend/internal/logging"
)

var marker = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Substitute replaces each {{slot}} marker that has an entry in urls. Markers
// left over are logged and kept verbatim; the page still deploys.
func Substitute(ctx context.Context, html string, urls map[string]string) string {
	pairs := make([]string, 0, 2*len(urls))
	for key, u := range urls {
		pairs = append(pairs, "{{"+key+"}}", u)
	}
	out := strings.NewReplacer(pairs...).Replace(html)

	if left := marker.FindAllString(out, -1); len(left) > 0 {
		logging.From(ctx).Warnw("unresolved image placeholders in html", "markers", unique(left))
	}
	return out
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
