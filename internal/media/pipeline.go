// Package media turns inline image payloads into durably hosted URLs.
package media

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/metrics"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

// Uploader stores one payload and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, siteID, filename, payload string) (string, error)
}

// Mode selects how pending uploads are scheduled.
type Mode int

const (
	// Parallel uploads every pending slot at once. Used on first publish.
	Parallel Mode = iota
	// Sequential uploads one slot at a time. Used on republish.
	Sequential
)

func (m Mode) String() string {
	if m == Sequential {
		return "sequential"
	}
	return "parallel"
}

type Pipeline struct {
	uploader Uploader
}

func NewPipeline(u Uploader) *Pipeline {
	return &Pipeline{uploader: u}
}

// UploadPending returns slot key to durable URL for every non-empty slot.
// Durable slots pass through without a network call. The first failed upload
// aborts the run; nothing is retried.
func (p *Pipeline) UploadPending(ctx context.Context, siteID string, data domain.WebsiteData, mode Mode) (map[string]string, error) {
	out := make(map[string]string)
	var pending []domain.Slot

	for _, s := range data.Slots() {
		switch s.Kind() {
		case domain.SlotDurable:
			out[s.Key] = s.Value
		case domain.SlotInline:
			pending = append(pending, s)
		}
	}

	if len(pending) == 0 {
		return out, nil
	}

	logging.From(ctx).Infow("uploading images", "site_id", siteID, "count", len(pending), "mode", mode.String())

	var err error
	if mode == Sequential {
		err = p.sequential(ctx, siteID, pending, out)
	} else {
		err = p.parallel(ctx, siteID, pending, out)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) sequential(ctx context.Context, siteID string, pending []domain.Slot, out map[string]string) error {
	for _, s := range pending {
		url, err := p.upload(ctx, siteID, s)
		if err != nil {
			return err
		}
		out[s.Key] = url
	}
	return nil
}

func (p *Pipeline) parallel(ctx context.Context, siteID string, pending []domain.Slot, out map[string]string) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range pending {
		g.Go(func() error {
			url, err := p.upload(gctx, siteID, s)
			if err != nil {
				return err
			}
			mu.Lock()
			out[s.Key] = url
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) upload(ctx context.Context, siteID string, s domain.Slot) (string, error) {
	url, err := p.uploader.Upload(ctx, siteID, s.Filename, s.Value)
	metrics.ImageUploads.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		logging.From(ctx).Errorw("image upload failed", "site_id", siteID, "slot", s.Key, zap.Error(err))
		return "", fmt.Errorf("upload %s: %w", s.Key, err)
	}
	return url, nil
}
