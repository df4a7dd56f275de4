package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"eventocc/internal/civil"
	"eventocc/internal/config"
	"eventocc/internal/ics"
	"eventocc/internal/model"
)

type memRepo struct {
	rules map[string]model.RecurrenceRule
	occs  map[string][]model.Occurrence
}

func newMemRepo(rules ...model.RecurrenceRule) *memRepo {
	r := &memRepo{rules: map[string]model.RecurrenceRule{}, occs: map[string][]model.Occurrence{}}
	for _, rule := range rules {
		r.rules[rule.ID] = rule
	}
	return r
}

func (m *memRepo) SaveRule(_ context.Context, rule model.RecurrenceRule) error {
	m.rules[rule.ID] = rule
	return nil
}

func (m *memRepo) ListRules(context.Context) ([]model.RecurrenceRule, error) {
	out := make([]model.RecurrenceRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ReplaceOccurrences(_ context.Context, id string, occs []model.Occurrence) error {
	m.occs[id] = occs
	return nil
}

type stubFetcher struct {
	body []byte
	fail bool
}

func (f stubFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, []error) {
	if f.fail {
		return nil, []error{errors.New("offline")}
	}
	var out []ics.FetchResult
	for _, s := range sources {
		out = append(out, ics.FetchResult{Source: s, Body: f.body})
	}
	return out, nil
}

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:yoga
DTSTAMP:20250101T000000Z
DTSTART:20250106T180000Z
DTEND:20250106T190000Z
RRULE:FREQ=DAILY;COUNT=3
END:VEVENT
END:VCALENDAR
`

func newTestScheduler(t *testing.T, repo Repository, f Fetcher) *Scheduler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HorizonDays = 14
	cfg.ICS = []config.ICSConfig{{ID: "studio", URL: "https://cal.example.com/studio.ics"}}
	s, err := New(cfg, repo, f)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestRunOnce_ImportsAndExpands(t *testing.T) {
	t.Parallel()

	weekly := model.RecurrenceRule{
		ID:        "trivia",
		Anchor:    civil.MustParse("2025-01-06"),
		Frequency: model.FrequencyWeekly,
		Interval:  1,
		Timezone:  "UTC",
	}
	broken := model.RecurrenceRule{ID: "broken", Anchor: civil.MustParse("2025-01-06"), Timezone: "Nowhere/City"}
	repo := newMemRepo(weekly, broken)

	s := newTestScheduler(t, repo, stubFetcher{body: []byte(strings.ReplaceAll(feed, "\n", "\r\n"))})
	rep, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.Imported != 1 || rep.Expanded != 2 || rep.Skipped != 1 || rep.FetchErrs != 0 {
		t.Fatalf("report = %+v", rep)
	}

	// Horizon is measured from "today" (2025-01-10), so 14 days reach 01-24.
	trivia := repo.occs["trivia"]
	if len(trivia) != 3 || trivia[2].Date != civil.MustParse("2025-01-20") {
		t.Fatalf("trivia occurrences = %+v", trivia)
	}
	yoga := repo.occs["studio:yoga"]
	if len(yoga) != 3 || yoga[0].StartTime != "18:00" {
		t.Fatalf("imported occurrences = %+v", yoga)
	}
	if _, ok := repo.occs["broken"]; ok {
		t.Fatalf("invalid rule must not be stored")
	}
}

func TestRunOnce_FetchFailureStillExpands(t *testing.T) {
	t.Parallel()

	once := model.RecurrenceRule{ID: "gala", Anchor: civil.MustParse("2025-01-20")}
	repo := newMemRepo(once)

	s := newTestScheduler(t, repo, stubFetcher{fail: true})
	rep, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.FetchErrs != 1 || rep.Expanded != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(repo.occs["gala"]) != 1 {
		t.Fatalf("gala occurrences = %+v", repo.occs["gala"])
	}
}

func TestNew_RejectsUnknownTimezone(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Timezone = "Nowhere/City"
	if _, err := New(cfg, newMemRepo(), nil); err == nil {
		t.Fatalf("expected error")
	}
}
