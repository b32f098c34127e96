package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/talk2db/talk2db/internal/assistant"
	"github.com/talk2db/talk2db/internal/suggest"
)

type queryRequest struct {
	Query    string `json:"query"`
	Question string `json:"question"`
}

type suggestionsRequest struct {
	Domain string `json:"domain"`
}

type domainSummary struct {
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	KeyMetrics []string `json:"key_metrics"`
	Tables     []string `json:"tables"`
}

// handleQuery always answers 200; failures travel in the envelope's error field.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query assistant is not configured", false, nil)
		return
	}

	var request queryRequest
	if err := decodeOptionalJSON(r.Body, &request); err != nil {
		message := "invalid request body: " + err.Error()
		writeJSON(w, http.StatusOK, assistant.Outcome{Error: &message})
		return
	}

	question := request.Query
	if strings.TrimSpace(question) == "" {
		question = request.Question
	}
	writeJSON(w, http.StatusOK, deps.Assistant.Ask(r.Context(), question))
}

func handleSuggestions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request suggestionsRequest
	if err := decodeOptionalJSON(r.Body, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid suggestions request body", false, map[string]any{"details": err.Error()})
		return
	}
	if deps.Suggester == nil {
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggest.Fallback()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": deps.Suggester.Suggest(r.Context(), request.Domain)})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema introspection is not configured", false, nil)
		return
	}
	description, err := deps.Schema(r.Context())
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "schema introspection failed", "error", err)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": description})
}

func handleDomains(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	summaries := []domainSummary{}
	if deps.Catalog != nil {
		for _, profile := range deps.Catalog.Profiles() {
			summaries = append(summaries, domainSummary{
				Name:       profile.Name,
				Aliases:    profile.Aliases,
				KeyMetrics: profile.KeyMetrics,
				Tables:     profile.TableNames(),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": summaries})
}

// decodeOptionalJSON treats an empty body as an empty object.
func decodeOptionalJSON(body io.Reader, target any) error {
	if err := json.NewDecoder(body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
