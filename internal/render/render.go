// Package render turns website content into the static page that gets
// deployed. Image slots are emitted as {{slot}} markers; the publish flow
// substitutes durable URLs afterwards.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/primebarber/site-backend/internal/sites/domain"
)

//go:embed templates/page.html.tmpl templates/styles.css
var assets embed.FS

// Page is the deployable output.
type Page struct {
	HTML string
	CSS  string
}

type Renderer interface {
	Render(data domain.WebsiteData) (Page, error)
}

type Static struct {
	page *template.Template
	css  string
	now  func() time.Time
}

// NewStatic parses the embedded page template. Delimiters are [[ ]] so the
// {{slot}} markers in the markup pass through untouched.
func NewStatic() (*Static, error) {
	page, err := template.New("page.html.tmpl").
		Delims("[[", "]]").
		ParseFS(assets, "templates/page.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	css, err := assets.ReadFile("templates/styles.css")
	if err != nil {
		return nil, fmt.Errorf("read stylesheet: %w", err)
	}
	return &Static{page: page, css: string(css), now: time.Now}, nil
}

type view struct {
	domain.WebsiteData
	BrandFirst string
	BrandRest  string
	Dial       string
	HasHero    bool
	HasAbout   bool
	Gallery    []int
	Year       int
}

// Render produces the page for data. Any non-blank image slot is treated as
// present and rendered as its marker, whatever its current value.
func (s *Static) Render(data domain.WebsiteData) (Page, error) {
	v := view{
		WebsiteData: data,
		Dial:        strings.Join(strings.Fields(data.Phone), ""),
		HasHero:     data.Hero.ImageURL != "",
		HasAbout:    data.About.ImageURL != "",
		Year:        s.now().Year(),
	}
	if words := strings.Fields(data.ShopName); len(words) > 0 {
		v.BrandFirst = words[0]
		v.BrandRest = strings.Join(words[1:], " ")
	}
	for i, g := range data.Gallery {
		if g != "" {
			v.Gallery = append(v.Gallery, i)
		}
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, v); err != nil {
		return Page{}, fmt.Errorf("render page: %w", err)
	}
	return Page{HTML: buf.String(), CSS: s.css}, nil
}
