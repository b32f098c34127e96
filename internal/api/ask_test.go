package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/talk2db/talk2db/internal/assistant"
	"github.com/talk2db/talk2db/internal/domain"
	"github.com/talk2db/talk2db/internal/query"
	"github.com/talk2db/talk2db/internal/schema"
	"github.com/talk2db/talk2db/internal/suggest"
)

func TestQueryEndpointAcceptsQueryOrQuestion(t *testing.T) {
	fake := &fakeAssistant{outcome: assistant.Outcome{
		SQLQuery: "SELECT COUNT(*) AS total FROM employees",
		Results: query.ResultSet{
			Columns: []string{"total"},
			Rows:    []query.Row{{"total": int64(6)}},
		},
		Explanation: "Counts employees.",
	}}
	h := NewHandler(testConfig(t, nil), Dependencies{Assistant: fake})

	for _, body := range []string{`{"query":"how many employees?"}`, `{"question":"how many employees?"}`} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body)))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
		}
		want := `{"sql_query":"SELECT COUNT(*) AS total FROM employees","results":[{"total":6}],"explanation":"Counts employees.","error":null}` + "\n"
		if diff := cmp.Diff(want, rr.Body.String()); diff != "" {
			t.Fatalf("body mismatch (-want +got):\n%s", diff)
		}
	}
	if diff := cmp.Diff([]string{"how many employees?", "how many employees?"}, fake.questions); diff != "" {
		t.Fatalf("questions mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryEndpointKeepsEnvelopeForNonFiniteValues(t *testing.T) {
	fake := &fakeAssistant{outcome: assistant.Outcome{
		SQLQuery: "SELECT 'nan'::DOUBLE AS ratio",
		Results: query.ResultSet{
			Columns: []string{"ratio"},
			Rows:    []query.Row{{"ratio": math.NaN()}},
		},
	}}
	h := NewHandler(testConfig(t, nil), Dependencies{Assistant: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"ratio?"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	want := `{"sql_query":"SELECT 'nan'::DOUBLE AS ratio","results":[{"ratio":"NaN"}],"explanation":"","error":null}` + "\n"
	if diff := cmp.Diff(want, rr.Body.String()); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryEndpointReportsBadBodyInEnvelope(t *testing.T) {
	fake := &fakeAssistant{}
	h := NewHandler(testConfig(t, nil), Dependencies{Assistant: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`not json`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if message, _ := body["error"].(string); !strings.HasPrefix(message, "invalid request body") {
		t.Fatalf("error = %v", body["error"])
	}
	if results, ok := body["results"].([]any); !ok || len(results) != 0 {
		t.Fatalf("results = %#v, want empty array", body["results"])
	}
	if len(fake.questions) != 0 {
		t.Fatalf("assistant should not be called, got %v", fake.questions)
	}
}

func TestQueryEndpointPassesBlankQuestionThrough(t *testing.T) {
	message := "No query provided"
	fake := &fakeAssistant{outcome: assistant.Outcome{Error: &message}}
	h := NewHandler(testConfig(t, nil), Dependencies{Assistant: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{}`)))
	body := decodeBody(t, rr)
	if body["error"] != "No query provided" {
		t.Fatalf("error = %v", body["error"])
	}
	if len(fake.questions) != 1 || fake.questions[0] != "" {
		t.Fatalf("questions = %#v", fake.questions)
	}
}

func TestSuggestionsEndpoint(t *testing.T) {
	fake := &fakeSuggester{suggestions: []string{"Who earns the most?"}}
	h := NewHandler(testConfig(t, nil), Dependencies{Suggester: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/suggestions", strings.NewReader(`{"domain":"hr"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if diff := cmp.Diff([]any{"Who earns the most?"}, body["suggestions"]); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
	if fake.domain != "hr" {
		t.Fatalf("domain = %q", fake.domain)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/suggestions", http.NoBody))
	if rr.Code != http.StatusOK || fake.domain != "" {
		t.Fatalf("empty body status = %d domain = %q", rr.Code, fake.domain)
	}
}

func TestSuggestionsEndpointFallsBackWithoutGenerator(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/suggestions", strings.NewReader(`{}`)))
	body := decodeBody(t, rr)
	got, _ := body["suggestions"].([]any)
	if len(got) != len(suggest.Fallback()) {
		t.Fatalf("suggestions = %#v", body["suggestions"])
	}
}

func TestSchemaEndpoints(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Schema: func(context.Context) (schema.Description, error) {
			return schema.Description{
				"employees": {{Name: "id", Type: "integer"}, {Name: "name", Type: "character varying"}},
			}, nil
		},
	})

	for _, path := range []string{"/api/schema", "/schema"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
		want := `{"schema":{"employees":[{"name":"id","type":"integer"},{"name":"name","type":"character varying"}]}}` + "\n"
		if diff := cmp.Diff(want, rr.Body.String()); diff != "" {
			t.Fatalf("%s body mismatch (-want +got):\n%s", path, diff)
		}
	}
}

func TestSchemaEndpointFailure(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Schema: func(context.Context) (schema.Description, error) {
			return nil, &schema.Error{Namespace: "public", Err: errors.New("connection refused")}
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "SCHEMA_FETCH_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if message, _ := body["message"].(string); !strings.Contains(message, "connection refused") {
		t.Fatalf("message = %q", message)
	}
}

func TestDomainsEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Catalog: domain.DefaultCatalog()})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/domains", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	domains, _ := body["domains"].([]any)
	if len(domains) != 3 {
		t.Fatalf("domains = %#v", body["domains"])
	}
	first, _ := domains[0].(map[string]any)
	if first["name"] != "employee" {
		t.Fatalf("first domain = %v", first)
	}
	if tables, _ := first["tables"].([]any); len(tables) == 0 {
		t.Fatalf("tables missing: %v", first)
	}
}

type fakeAssistant struct {
	questions []string
	outcome   assistant.Outcome
}

func (f *fakeAssistant) Ask(_ context.Context, question string) assistant.Outcome {
	f.questions = append(f.questions, question)
	return f.outcome
}

type fakeSuggester struct {
	domain      string
	suggestions []string
}

func (f *fakeSuggester) Suggest(_ context.Context, domain string) []string {
	f.domain = domain
	return f.suggestions
}
