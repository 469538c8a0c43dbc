// Package drafts is the device-local draft store. It is written first on every
// save and is the source of truth until reconciliation.
package drafts

import (
	"context"

	"github.com/primebarber/site-backend/internal/sites/domain"
)

// Store holds one record per site id for a single device. Records round-trip
// unchanged, inline image payloads included.
type Store interface {
	Put(ctx context.Context, site domain.SiteInstance) error
	// Get returns domain.ErrSiteNotFound when id is unknown.
	Get(ctx context.Context, id string) (*domain.SiteInstance, error)
	// All returns every record, most recently saved first.
	All(ctx context.Context) ([]domain.SiteInstance, error)
}

// Provider hands out the store for a device namespace.
type Provider interface {
	ForDevice(deviceID string) Store
}

// Single serves the same store for every device.
type Single struct {
	Store Store
}

func (s Single) ForDevice(string) Store { return s.Store }
