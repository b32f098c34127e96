// Package talk2dbctl is a small command line client for the talk2db API.
package talk2dbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   []byte
	raw    bool
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	fs := flag.NewFlagSet("talk2dbctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "talk2db API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	var req request
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/ready"}
	case "ping":
		req = request{method: http.MethodGet, path: "/api/ping"}
	case "schema":
		req = request{method: http.MethodGet, path: "/api/schema"}
	case "domains":
		req = request{method: http.MethodGet, path: "/api/domains"}
	case "ask":
		question := strings.TrimSpace(strings.Join(rest, " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		req = request{method: http.MethodPost, path: "/api/query", body: mustJSON(map[string]string{"query": question})}
	case "suggest":
		req = request{method: http.MethodPost, path: "/api/suggestions", body: mustJSON(map[string]string{"domain": strings.Join(rest, " ")})}
	case "export":
		format := "csv"
		if len(rest) > 0 {
			format = rest[0]
		}
		rows, err := io.ReadAll(stdin)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "read rows from stdin: %v\n", err)
			return 1
		}
		if !json.Valid(rows) {
			_, _ = fmt.Fprintln(stderr, "export expects a JSON array of objects on stdin")
			return 2
		}
		body := mustJSON(map[string]any{"data": json.RawMessage(rows), "format": format})
		req = request{method: http.MethodPost, path: "/api/export", body: body, raw: true}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if req.raw {
		_, _ = stdout.Write(responseBody)
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
	} else if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	if command == "ask" && outcomeFailed(responseBody) {
		return 1
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

// outcomeFailed reports whether a /api/query envelope carries an error.
func outcomeFailed(raw []byte) bool {
	var outcome struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return false
	}
	return outcome.Error != nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func mustJSON(value any) []byte {
	encoded, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return encoded
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: talk2dbctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health             GET /health")
	_, _ = fmt.Fprintln(w, "  ready              GET /ready")
	_, _ = fmt.Fprintln(w, "  ping               GET /api/ping")
	_, _ = fmt.Fprintln(w, "  schema             GET /api/schema")
	_, _ = fmt.Fprintln(w, "  domains            GET /api/domains")
	_, _ = fmt.Fprintln(w, "  ask <question>     POST /api/query")
	_, _ = fmt.Fprintln(w, "  suggest [domain]   POST /api/suggestions")
	_, _ = fmt.Fprintln(w, "  export [format]    POST /api/export with rows read from stdin")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
