package featured

import (
	"context"
	"errors"

	"curator/models"
	"curator/services/scheduler"
)

// ErrRefreshUnavailable is returned by TriggerRefresh when no scheduler is wired.
var ErrRefreshUnavailable = errors.New("refresh scheduler not available")

// MemoPurger clears memoised metadata lookups. *metadata.Enricher implements it.
type MemoPurger interface {
	PurgeMemo(ctx context.Context) (int, error)
}

// Trigger starts a background refresh pass. *scheduler.Service implements it.
type Trigger interface {
	Trigger() bool
	Status() scheduler.Status
}

// Service is the entry point used by the HTTP layer and CLI.
type Service struct {
	cache     *Orchestrator
	refresher Trigger
	memo      MemoPurger
}

func NewService(cache *Orchestrator, refresher Trigger) *Service {
	return &Service{cache: cache, refresher: refresher}
}

// WithMemo lets InvalidateMetadata reach the enrichment memo.
func (s *Service) WithMemo(memo MemoPurger) *Service {
	s.memo = memo
	return s
}

// GetFeaturedContent never fails; worst case it returns the static sample document.
func (s *Service) GetFeaturedContent(ctx context.Context) *models.FeaturedContent {
	return s.cache.Get(ctx)
}

// GetCategory returns one category, or false when id is unknown.
func (s *Service) GetCategory(ctx context.Context, id string) (models.ContentCategory, bool) {
	return s.cache.GetCategory(ctx, id)
}

// InvalidateCache drops every cached featured entry.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

// InvalidateMetadata drops memoised metadata lookups as well as the featured
// cache, so the next build re-queries the metadata provider.
func (s *Service) InvalidateMetadata(ctx context.Context) error {
	var errs []error
	if s.memo != nil {
		if _, err := s.memo.PurgeMemo(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TriggerRefresh starts a background pass. It returns
// scheduler.ErrRefreshInProgress when one is already running.
func (s *Service) TriggerRefresh() error {
	if s.refresher == nil {
		return ErrRefreshUnavailable
	}
	if !s.refresher.Trigger() {
		return scheduler.ErrRefreshInProgress
	}
	return nil
}

// ServiceStatus combines cache and scheduler state for operators.
type ServiceStatus struct {
	Cache     CacheStatus       `json:"cache"`
	Scheduler *scheduler.Status `json:"scheduler,omitempty"`
}

func (s *Service) Status() ServiceStatus {
	status := ServiceStatus{Cache: s.cache.Status()}
	if s.refresher != nil {
		sched := s.refresher.Status()
		status.Scheduler = &sched
	}
	return status
}
