package domain

import "time"

type DeploymentStatus string

const (
	StatusDraft     DeploymentStatus = "draft"
	StatusDeploying DeploymentStatus = "deploying"
	StatusDeployed  DeploymentStatus = "deployed"
	StatusFailed    DeploymentStatus = "failed"
)

func (s DeploymentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusDeploying, StatusDeployed, StatusFailed:
		return true
	}
	return false
}

// ShopInputs is what the user typed into the generator form.
type ShopInputs struct {
	ShopName string `json:"shopName"`
	Area     string `json:"area"`
	Phone    string `json:"phone"`
}

type Hero struct {
	Heading  string `json:"heading"`
	Tagline  string `json:"tagline"`
	ImageURL string `json:"imageUrl"`
}

type About struct {
	Heading     string   `json:"heading"`
	Description []string `json:"description"`
	ImageURL    string   `json:"imageUrl"`
}

type ServiceItem struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	ImageURL    string `json:"imageUrl"`
}

type Contact struct {
	Address string `json:"address"`
	Email   string `json:"email"`
}

// WebsiteData is the generated page content. It is treated as a value:
// edits go through Edit functions that return a modified copy.
type WebsiteData struct {
	ShopName string        `json:"shopName"`
	Area     string        `json:"area"`
	Phone    string        `json:"phone"`
	Hero     Hero          `json:"hero"`
	About    About         `json:"about"`
	Services []ServiceItem `json:"services"`
	Gallery  []string      `json:"gallery"`
	Contact  Contact       `json:"contact"`
}

// Clone returns a deep copy so the result shares no slice backing arrays with w.
func (w WebsiteData) Clone() WebsiteData {
	out := w
	if w.About.Description != nil {
		out.About.Description = append([]string(nil), w.About.Description...)
	}
	if w.Services != nil {
		out.Services = append([]ServiceItem(nil), w.Services...)
	}
	if w.Gallery != nil {
		out.Gallery = append([]string(nil), w.Gallery...)
	}
	return out
}

// SiteInstance is the persisted unit shared by the draft and record stores.
type SiteInstance struct {
	ID               string           `json:"id"`
	Data             WebsiteData      `json:"data"`
	LastSaved        int64            `json:"lastSaved"`
	FormInputs       ShopInputs       `json:"formInputs"`
	DeployedURL      *string          `json:"deployedUrl"`
	DeploymentStatus DeploymentStatus `json:"deploymentStatus"`
	CustomDomain     *string          `json:"customDomain"`
	DomainOrderID    *string          `json:"domainOrderId"`
}

// NewSite builds a draft instance for freshly generated content.
func NewSite(id string, inputs ShopInputs, data WebsiteData) SiteInstance {
	return SiteInstance{
		ID:               id,
		Data:             data,
		FormInputs:       inputs,
		DeploymentStatus: StatusDraft,
	}
}

// Clone deep-copies the instance including nullable fields.
func (s SiteInstance) Clone() SiteInstance {
	out := s
	out.Data = s.Data.Clone()
	out.DeployedURL = cloneString(s.DeployedURL)
	out.CustomDomain = cloneString(s.CustomDomain)
	out.DomainOrderID = cloneString(s.DomainOrderID)
	return out
}

// ProjectSeed is the string a deployment project name is derived from.
func (s SiteInstance) ProjectSeed() string {
	if s.Data.ShopName != "" {
		return s.Data.ShopName
	}
	if s.FormInputs.ShopName != "" {
		return s.FormInputs.ShopName
	}
	return s.ID
}

// Stamp returns a save timestamp that is strictly greater than prev.
func Stamp(now time.Time, prev int64) int64 {
	ms := now.UnixMilli()
	if ms <= prev {
		return prev + 1
	}
	return ms
}

func StringPtr(v string) *string {
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
