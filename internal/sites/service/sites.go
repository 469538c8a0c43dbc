// Package service coordinates the two site stores: every save lands in the
// device's draft store synchronously and is mirrored to the account's record
// store in the background; dashboard loads merge both views.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/detached"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/metrics"
	"github.com/primebarber/site-backend/internal/sites/domain"
	"github.com/primebarber/site-backend/internal/sites/drafts"
)

const (
	taskRemoteMirror = "remote-mirror"
	taskResync       = "reconcile-resync"
)

// RemoteStore is the account-scoped record store.
type RemoteStore interface {
	Upsert(ctx context.Context, site domain.SiteInstance, userID string) error
	ListByUser(ctx context.Context, userID string) ([]domain.SiteInstance, error)
}

type Sites struct {
	local  drafts.Provider
	remote RemoteStore
	tasks  detached.Spawner
	now    func() time.Time
}

type Option func(*Sites)

// WithClock overrides time.Now for stamping.
func WithClock(now func() time.Time) Option {
	return func(s *Sites) { s.now = now }
}

// NewSites wires the coordinator. remote may be nil, in which case the
// service runs local-only.
func NewSites(local drafts.Provider, remote RemoteStore, tasks detached.Spawner, opts ...Option) *Sites {
	s := &Sites{local: local, remote: remote, tasks: tasks, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save stamps the record, writes it to the session's draft store, and
// schedules the remote mirror. Only the local write can fail the call.
func (s *Sites) Save(ctx context.Context, site domain.SiteInstance, sess auth.Session) (domain.SiteInstance, error) {
	if site.ID == "" {
		return domain.SiteInstance{}, domain.ErrInvalidSiteID
	}

	saved := site.Clone()
	saved.LastSaved = domain.Stamp(s.now(), site.LastSaved)
	if saved.DeploymentStatus == "" {
		saved.DeploymentStatus = domain.StatusDraft
	}

	if err := s.local.ForDevice(sess.Device()).Put(ctx, saved); err != nil {
		return domain.SiteInstance{}, fmt.Errorf("save draft %s: %w", saved.ID, err)
	}

	s.mirror(ctx, taskRemoteMirror, saved, sess)
	return saved, nil
}

// Update applies typed edits to the current copy of a site and saves it.
func (s *Sites) Update(ctx context.Context, sess auth.Session, id string, edits ...domain.Edit) (domain.SiteInstance, error) {
	cur, err := s.Get(ctx, sess, id)
	if err != nil {
		return domain.SiteInstance{}, err
	}
	cur.Data = domain.Apply(cur.Data, edits...)
	return s.Save(ctx, cur, sess)
}

// mirror writes to the remote store on a detached task. Nothing is scheduled
// for anonymous sessions.
func (s *Sites) mirror(ctx context.Context, task string, site domain.SiteInstance, sess auth.Session) {
	if s.remote == nil || !sess.Authenticated() {
		return
	}
	userID := sess.UserID
	s.tasks.Go(ctx, task, func(tctx context.Context) error {
		if err := s.remote.Upsert(tctx, site, userID); err != nil {
			return fmt.Errorf("mirror site %s: %w", site.ID, err)
		}
		return nil
	})
}

// LoadAll merges the remote and local views of the session's sites. It never
// fails: an unavailable source contributes nothing.
//
// A local record replaces the remote copy only when its stamp is strictly
// greater. Local-only and local-fresher records are re-sent to the remote
// store in the background.
func (s *Sites) LoadAll(ctx context.Context, sess auth.Session) []domain.SiteInstance {
	log := logging.From(ctx)

	var remote []domain.SiteInstance
	if s.remote != nil && sess.Authenticated() {
		var err error
		remote, err = s.remote.ListByUser(ctx, sess.UserID)
		if err != nil {
			log.Warnw("remote site list unavailable", zap.Error(err))
			remote = nil
		}
	}

	local, err := s.local.ForDevice(sess.Device()).All(ctx)
	if err != nil {
		log.Warnw("local draft list unavailable", zap.Error(err))
		local = nil
	}

	return s.merge(ctx, remote, local, sess)
}

func (s *Sites) merge(ctx context.Context, remote, local []domain.SiteInstance, sess auth.Session) []domain.SiteInstance {
	merged := make([]domain.SiteInstance, 0, len(remote)+len(local))
	index := make(map[string]int, len(remote))
	for _, r := range remote {
		if _, dup := index[r.ID]; dup {
			continue
		}
		index[r.ID] = len(merged)
		merged = append(merged, r)
	}
	metrics.ReconciledRecords.WithLabelValues("remote").Add(float64(len(merged)))

	seenLocal := make(map[string]struct{}, len(local))
	for _, l := range local {
		if _, dup := seenLocal[l.ID]; dup {
			continue
		}
		seenLocal[l.ID] = struct{}{}

		i, ok := index[l.ID]
		switch {
		case !ok:
			index[l.ID] = len(merged)
			merged = append(merged, l)
			metrics.ReconciledRecords.WithLabelValues("local_only").Inc()
			s.mirror(ctx, taskResync, l, sess)
		case l.LastSaved > merged[i].LastSaved:
			merged[i] = l
			metrics.ReconciledRecords.WithLabelValues("local_fresher").Inc()
			s.mirror(ctx, taskResync, l, sess)
		}
	}
	return merged
}

// Get returns the freshest known copy of one site, checking the device's
// drafts and, for signed-in sessions, the remote store. The local copy wins a
// tie: the mirror carries the same stamp but has no inline images.
func (s *Sites) Get(ctx context.Context, sess auth.Session, id string) (domain.SiteInstance, error) {
	var best *domain.SiteInstance

	local, err := s.local.ForDevice(sess.Device()).Get(ctx, id)
	switch {
	case err == nil:
		best = local
	case !errors.Is(err, domain.ErrSiteNotFound):
		logging.From(ctx).Warnw("local draft read failed", "site_id", id, zap.Error(err))
	}

	if s.remote != nil && sess.Authenticated() {
		remote, err := s.remote.ListByUser(ctx, sess.UserID)
		if err != nil {
			logging.From(ctx).Warnw("remote site list unavailable", "site_id", id, zap.Error(err))
		}
		for i := range remote {
			if remote[i].ID != id {
				continue
			}
			if best == nil || remote[i].LastSaved > best.LastSaved {
				r := remote[i]
				best = &r
			}
			break
		}
	}

	if best == nil {
		return domain.SiteInstance{}, domain.ErrSiteNotFound
	}
	return *best, nil
}
