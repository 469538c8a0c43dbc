package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	SlotHero  = "hero"
	SlotAbout = "about"

	galleryPrefix = "gallery"
)

type SlotKind int

const (
	SlotEmpty SlotKind = iota
	SlotInline
	SlotDurable
)

// Classify reports how a slot value should be treated by the upload pipeline.
// Anything that is neither a data URL nor an http(s) URL (blank, "{{hero}}"
// markers, relative paths) counts as empty.
func Classify(v string) SlotKind {
	switch {
	case strings.HasPrefix(v, "data:"):
		return SlotInline
	case strings.HasPrefix(v, "http://"), strings.HasPrefix(v, "https://"):
		return SlotDurable
	default:
		return SlotEmpty
	}
}

func GallerySlot(i int) string {
	return galleryPrefix + strconv.Itoa(i)
}

// Slot is one image position in WebsiteData.
type Slot struct {
	Key      string
	Filename string
	Value    string
}

func (s Slot) Kind() SlotKind { return Classify(s.Value) }

// Slots lists every image slot in a fixed order: hero, about, gallery0..N-1.
func (w WebsiteData) Slots() []Slot {
	out := make([]Slot, 0, 2+len(w.Gallery))
	out = append(out,
		Slot{Key: SlotHero, Filename: "hero.jpg", Value: w.Hero.ImageURL},
		Slot{Key: SlotAbout, Filename: "about.jpg", Value: w.About.ImageURL},
	)
	for i, g := range w.Gallery {
		out = append(out, Slot{
			Key:      GallerySlot(i),
			Filename: fmt.Sprintf("gallery-%d.jpg", i),
			Value:    g,
		})
	}
	return out
}

func (w WebsiteData) HasInlineImages() bool {
	for _, s := range w.Slots() {
		if s.Kind() == SlotInline {
			return true
		}
	}
	return false
}

// WithoutInlineImages blanks every slot that still carries an inline payload.
func (w WebsiteData) WithoutInlineImages() WebsiteData {
	out := w.Clone()
	if Classify(out.Hero.ImageURL) == SlotInline {
		out.Hero.ImageURL = ""
	}
	if Classify(out.About.ImageURL) == SlotInline {
		out.About.ImageURL = ""
	}
	for i, g := range out.Gallery {
		if Classify(g) == SlotInline {
			out.Gallery[i] = ""
		}
	}
	return out
}

// WithImageURLs rewrites slots present in urls. Unknown keys are ignored.
func (w WebsiteData) WithImageURLs(urls map[string]string) WebsiteData {
	out := w.Clone()
	if u, ok := urls[SlotHero]; ok {
		out.Hero.ImageURL = u
	}
	if u, ok := urls[SlotAbout]; ok {
		out.About.ImageURL = u
	}
	for i := range out.Gallery {
		if u, ok := urls[GallerySlot(i)]; ok {
			out.Gallery[i] = u
		}
	}
	return out
}

// WithSlotMarkers replaces every occupied image slot with its {{key}} marker,
// the form the renderer emits before durable URLs are substituted. Blank
// slots stay blank so the page omits them.
func (w WebsiteData) WithSlotMarkers() WebsiteData {
	markers := make(map[string]string)
	for _, s := range w.Slots() {
		if s.Value != "" {
			markers[s.Key] = "{{" + s.Key + "}}"
		}
	}
	return w.WithImageURLs(markers)
}
