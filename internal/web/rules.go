package web

import (
	"net/http"
	"strings"

	"eventocc/internal/badge"
	"eventocc/internal/civil"
	"eventocc/internal/classify"
	"eventocc/internal/ics"
	appLog "eventocc/internal/log"
	"eventocc/internal/model"
	"eventocc/internal/recurrence"
)

type expandRequest struct {
	Rule model.RecurrenceRule `json:"rule"`
	// Reference and Through are optional; see recurrence.Config.
	Reference civil.Date `json:"reference,omitzero"`
	Through   civil.Date `json:"through,omitzero"`
}

type occurrencesResponse struct {
	RuleID      string             `json:"ruleId,omitempty"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

// handleExpand expands a rule without storing anything. The result depends
// only on the request body and the configured horizon.
//
// POST /api/expand {"rule": {...}, "reference": "2025-01-01", "through": "2025-03-01"}
func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Rule.Timezone == "" {
		req.Rule.Timezone = s.cfg.Timezone
	}

	exp := s.cfg.Expansion()
	exp.Reference = req.Reference
	exp.Through = req.Through
	occs, err := recurrence.Expand(req.Rule, exp)
	if err != nil {
		writeExpandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{RuleID: req.Rule.ID, Occurrences: occs})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule model.RecurrenceRule
	if !decodeJSON(w, r, &rule) {
		return
	}
	if rule.ID == "" {
		rule.ID = s.newID()
	}
	if rule.Timezone == "" {
		rule.Timezone = s.cfg.Timezone
	}

	occs, err := s.materialize(r.Context(), rule)
	if err != nil {
		writeExpandError(w, err)
		return
	}
	appLog.Info("rule stored", "rule_id", rule.ID, "occurrences", len(occs))
	writeJSON(w, http.StatusCreated, occurrencesResponse{RuleID: rule.ID, Occurrences: occs})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.repo.ListRules(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleOccurrences lists stored occurrences, oldest first. With future=1 the
// cancelled and past ones are dropped.
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.loadRule(w, r)
	if !ok {
		return
	}
	occs, err := s.repo.ListOccurrences(r.Context(), rule.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if isTruthy(r.URL.Query().Get("future")) {
		occs = classify.FutureOccurrences(occs, s.now())
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{RuleID: rule.ID, Occurrences: occs})
}

type badgeResponse struct {
	Text     string   `json:"text"`
	Tooltip  []string `json:"tooltip"`
	Next     string   `json:"next,omitempty"`
	NextLong string   `json:"nextLong"`
	Status   string   `json:"status,omitempty"`
	SoldOut  bool     `json:"soldOut"`
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.loadRule(w, r)
	if !ok {
		return
	}
	occs, err := s.repo.ListOccurrences(r.Context(), rule.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	now := s.now()
	resp := badgeResponse{
		Text:    badge.MultiDateBadgeText(occs, rule.Anchor.String(), now),
		Tooltip: badge.TooltipLines(occs, now, s.cfg.TooltipLines),
	}
	if resp.Tooltip == nil {
		resp.Tooltip = []string{}
	}

	future := classify.FutureOccurrences(occs, now)
	if len(future) > 0 {
		next := future[0]
		resp.Next = next.Date.String()
		resp.SoldOut = next.State == model.StateSoldOut
		if start, end, ok := classify.InstantsOf(next); ok {
			resp.Status, _ = classify.StatusLabel(start, end, now)
		}
	}
	resp.NextLong = badge.LongDateText(resp.Next)
	writeJSON(w, http.StatusOK, resp)
}

type stateRequest struct {
	State string `json:"state"`
}

// handleSetState applies an operations transition to one stored occurrence.
//
// PUT /api/rules/{id}/occurrences/{date}/state {"state": "SOLD_OUT"}
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	d, err := civil.ParseISO(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	var req stateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	state, err := model.ParseState(req.State)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "state"})
		return
	}

	id := r.PathValue("id")
	if err := s.repo.SetOccurrenceState(r.Context(), id, d, state); err != nil {
		writeStoreError(w, err)
		return
	}
	appLog.Info("occurrence state changed", "rule_id", id, "date", d, "state", state)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.loadRule(w, r)
	if !ok {
		return
	}
	occs, err := s.repo.ListOccurrences(r.Context(), rule.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	body := ics.Export(occs, ics.ExportOptions{
		RuleID:  rule.ID,
		Name:    rule.ID,
		Summary: rule.ID,
		Stamp:   s.now().UTC(),
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+safeFilename(rule.ID)+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func safeFilename(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
