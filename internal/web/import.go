package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"eventocc/internal/ics"
	appLog "eventocc/internal/log"
	"eventocc/internal/recurrence"
	"eventocc/internal/store"
)

type importSkip struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type importResponse struct {
	Imported []string     `json:"imported"`
	Skipped  []importSkip `json:"skipped"`
}

// handleImport stores every master event of an uploaded calendar as a rule.
// Events whose rule cannot be expanded are reported and skipped.
//
// POST /api/import?source=club   (body: text/calendar)
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "required", Field: "source"})
		return
	}
	body, ok := readBody(w, r, maxICSBody)
	if !ok {
		return
	}

	rules, err := ics.ParseRules(source, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := importResponse{Imported: []string{}, Skipped: []importSkip{}}
	for _, rule := range rules {
		if _, err := s.materialize(r.Context(), rule); err != nil {
			if errors.Is(err, recurrence.ErrValidation) {
				resp.Skipped = append(resp.Skipped, importSkip{ID: rule.ID, Error: err.Error()})
				continue
			}
			writeStoreError(w, err)
			return
		}
		resp.Imported = append(resp.Imported, rule.ID)
	}
	appLog.Info("ics imported", "source", source, "imported", len(resp.Imported), "skipped", len(resp.Skipped))
	writeJSON(w, http.StatusOK, resp)
}

type authoringRequest struct {
	ID       string          `json:"id"`
	Timezone string          `json:"timezone"`
	Dates    json.RawMessage `json:"dates"`
}

// handleAuthoringSubmit turns a persisted authoring session into a stored
// rule.
func (s *Server) handleAuthoringSubmit(w http.ResponseWriter, r *http.Request) {
	var req authoringRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Dates) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "required", Field: "dates"})
		return
	}

	session, err := store.FromPersisted(req.Dates)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "dates"})
		return
	}

	tz := req.Timezone
	if tz == "" {
		tz = s.cfg.Timezone
	}
	rule, err := session.ToRule(tz)
	if errors.Is(err, store.ErrEmpty) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "dates"})
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	rule.ID = req.ID
	if rule.ID == "" {
		rule.ID = s.newID()
	}

	occs, err := s.materialize(r.Context(), rule)
	if err != nil {
		writeExpandError(w, err)
		return
	}
	appLog.Info("authoring session submitted", "rule_id", rule.ID, "dates", session.Len(), "occurrences", len(occs))
	writeJSON(w, http.StatusCreated, occurrencesResponse{RuleID: rule.ID, Occurrences: occs})
}
