package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eventocc/internal/civil"
	"eventocc/internal/config"
	"eventocc/internal/ics"
	appLog "eventocc/internal/log"
	"eventocc/internal/model"
	"eventocc/internal/recurrence"
)

// Repository is the part of storage the refresh job needs.
type Repository interface {
	SaveRule(ctx context.Context, rule model.RecurrenceRule) error
	ListRules(ctx context.Context) ([]model.RecurrenceRule, error)
	ReplaceOccurrences(ctx context.Context, ruleID string, occs []model.Occurrence) error
}

// Fetcher downloads ICS sources.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Report summarizes one refresh run.
type Report struct {
	Imported  int
	Expanded  int
	Skipped   int
	FetchErrs int
}

// Scheduler periodically imports the configured ICS sources and
// re-materializes every stored rule against the current date.
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	repo    Repository
	fetcher Fetcher
	now     func() time.Time

	// mu keeps a slow run from overlapping the next tick.
	mu sync.Mutex
}

func New(cfg *config.Config, repo Repository, fetcher Fetcher) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		cfg:     cfg,
		repo:    repo,
		fetcher: fetcher,
		now:     time.Now,
	}, nil
}

// Start registers the refresh job, runs it once immediately, and blocks
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.RefreshCron, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}

	s.tick(ctx)
	s.cron.Start()
	appLog.Info("scheduler started", "refresh", s.cfg.RefreshCron, "timezone", s.cfg.Timezone)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := s.RunOnce(ctx)
	if err != nil {
		appLog.Error("refresh failed", err)
		return
	}
	appLog.Info("refresh finished",
		"imported", rep.Imported,
		"expanded", rep.Expanded,
		"skipped", rep.Skipped,
		"fetch_errors", rep.FetchErrs,
	)
}

// RunOnce imports every ICS source and re-expands all stored rules. A rule
// that fails validation is logged and skipped; storage failures abort.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep Report

	if len(s.cfg.ICS) > 0 && s.fetcher != nil {
		sources := make([]ics.Source, 0, len(s.cfg.ICS))
		for _, c := range s.cfg.ICS {
			sources = append(sources, ics.Source{ID: c.ID, URL: c.URL})
		}
		results, errs := s.fetcher.FetchAll(ctx, sources)
		rep.FetchErrs = len(errs)
		for _, res := range results {
			rules, err := ics.ParseRules(res.Source.ID, res.Body)
			if err != nil {
				appLog.Error("ics parse failed", err, "id", res.Source.ID)
				rep.FetchErrs++
				continue
			}
			for _, rule := range rules {
				if err := s.repo.SaveRule(ctx, rule); err != nil {
					return rep, err
				}
				rep.Imported++
			}
		}
	}

	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return rep, err
	}

	exp := s.cfg.Expansion()
	exp.Reference = civil.TodayUTC(s.now())
	for _, rule := range rules {
		occs, err := recurrence.Expand(rule, exp)
		if err != nil {
			if errors.Is(err, recurrence.ErrValidation) {
				appLog.Warn("rule skipped", "rule_id", rule.ID, "reason", err.Error())
				rep.Skipped++
				continue
			}
			return rep, err
		}
		if err := s.repo.ReplaceOccurrences(ctx, rule.ID, occs); err != nil {
			return rep, err
		}
		rep.Expanded++
	}
	return rep, nil
}
