package domain

import "fmt"

// Edit replaces one field of a WebsiteData and returns the copy.
type Edit func(WebsiteData) WebsiteData

// Apply runs edits in order against a clone of w.
func Apply(w WebsiteData, edits ...Edit) WebsiteData {
	out := w.Clone()
	for _, e := range edits {
		out = e(out)
	}
	return out
}

func WithShopName(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.ShopName = v; return w }
}

func WithArea(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.Area = v; return w }
}

func WithPhone(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.Phone = v; return w }
}

func WithHeroHeading(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.Hero.Heading = v; return w }
}

func WithHeroTagline(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.Hero.Tagline = v; return w }
}

func WithHeroImage(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.Hero.ImageURL = v; return w }
}

func WithAboutHeading(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.About.Heading = v; return w }
}

func WithAboutImage(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.About.ImageURL = v; return w }
}

// WithAboutParagraph sets paragraph i, growing the description if needed.
func WithAboutParagraph(i int, v string) Edit {
	return func(w WebsiteData) WebsiteData {
		w = w.Clone()
		for len(w.About.Description) <= i {
			w.About.Description = append(w.About.Description, "")
		}
		w.About.Description[i] = v
		return w
	}
}

func WithContactAddress(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.Contact.Address = v; return w }
}

func WithContactEmail(v string) Edit {
	return func(w WebsiteData) WebsiteData { w = w.Clone(); w.Contact.Email = v; return w }
}

// WithGalleryImage sets gallery position i. Out-of-range indexes are a no-op.
func WithGalleryImage(i int, v string) Edit {
	return func(w WebsiteData) WebsiteData {
		w = w.Clone()
		if i >= 0 && i < len(w.Gallery) {
			w.Gallery[i] = v
		}
		return w
	}
}

func withService(i int, set func(*ServiceItem)) Edit {
	return func(w WebsiteData) WebsiteData {
		w = w.Clone()
		if i >= 0 && i < len(w.Services) {
			set(&w.Services[i])
		}
		return w
	}
}

func WithServiceTitle(i int, v string) Edit {
	return withService(i, func(s *ServiceItem) { s.Title = v })
}

func WithServiceSubtitle(i int, v string) Edit {
	return withService(i, func(s *ServiceItem) { s.Subtitle = v })
}

func WithServiceDescription(i int, v string) Edit {
	return withService(i, func(s *ServiceItem) { s.Description = v })
}

func WithServiceImage(i int, v string) Edit {
	return withService(i, func(s *ServiceItem) { s.ImageURL = v })
}

// Field names accepted by EditFor. The set is closed; anything else is rejected.
const (
	FieldShopName           = "shopName"
	FieldArea               = "area"
	FieldPhone              = "phone"
	FieldHeroHeading        = "heroHeading"
	FieldHeroTagline        = "heroTagline"
	FieldHeroImage          = "heroImage"
	FieldAboutHeading       = "aboutHeading"
	FieldAboutParagraph     = "aboutParagraph"
	FieldAboutImage         = "aboutImage"
	FieldContactAddress     = "contactAddress"
	FieldContactEmail       = "contactEmail"
	FieldGalleryImage       = "galleryImage"
	FieldServiceTitle       = "serviceTitle"
	FieldServiceSubtitle    = "serviceSubtitle"
	FieldServiceDescription = "serviceDescription"
	FieldServiceImage       = "serviceImage"
)

var scalarEditors = map[string]func(string) Edit{
	FieldShopName:       WithShopName,
	FieldArea:           WithArea,
	FieldPhone:          WithPhone,
	FieldHeroHeading:    WithHeroHeading,
	FieldHeroTagline:    WithHeroTagline,
	FieldHeroImage:      WithHeroImage,
	FieldAboutHeading:   WithAboutHeading,
	FieldAboutImage:     WithAboutImage,
	FieldContactAddress: WithContactAddress,
	FieldContactEmail:   WithContactEmail,
}

var indexedEditors = map[string]func(int, string) Edit{
	FieldAboutParagraph:     WithAboutParagraph,
	FieldGalleryImage:       WithGalleryImage,
	FieldServiceTitle:       WithServiceTitle,
	FieldServiceSubtitle:    WithServiceSubtitle,
	FieldServiceDescription: WithServiceDescription,
	FieldServiceImage:       WithServiceImage,
}

// EditFor maps a field name from the wire onto its typed editor.
// index is required for list fields and must be nil otherwise.
func EditFor(field string, index *int, value string) (Edit, error) {
	if f, ok := scalarEditors[field]; ok {
		if index != nil {
			return nil, fmt.Errorf("%w: %s does not take an index", ErrInvalidEdit, field)
		}
		return f(value), nil
	}
	if f, ok := indexedEditors[field]; ok {
		if index == nil || *index < 0 {
			return nil, fmt.Errorf("%w: %s requires a non-negative index", ErrInvalidEdit, field)
		}
		return f(*index, value), nil
	}
	return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidEdit, field)
}
