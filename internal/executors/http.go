package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPConfig configures the HTTP-backed executors.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

// HTTPRequestExecutor performs the http_request step kind: a generic HTTP
// call with configurable method, url, headers and body. A non-2xx response is
// a step failure. JSON content-type responses are parsed; other bodies are
// used raw. An optional "extract" jq program reshapes the parsed body before
// it becomes the step's output delta.
type HTTPRequestExecutor struct {
	config HTTPConfig
	jq     *expressions.GoJQEngine
}

// NewHTTPRequestExecutor creates a new http_request executor.
func NewHTTPRequestExecutor(cfg HTTPConfig, jq *expressions.GoJQEngine) *HTTPRequestExecutor {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &HTTPRequestExecutor{config: cfg, jq: jq}
}

func (e *HTTPRequestExecutor) Kind() schema.StepKind { return schema.StepKindHTTPRequest }

func (e *HTTPRequestExecutor) Execute(ctx context.Context, input Input) (*Output, error) {
	params := input.Config
	if params == nil {
		params = map[string]any{}
	}

	rawURL := stringParam(params, "url", "")
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "http_request: missing required config 'url'")
	}
	if u, err := url.ParseRequestURI(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http_request: invalid url %q", rawURL)
	}

	method := strings.ToUpper(stringParam(params, "method", "GET"))
	timeout := durationParam(params, "timeout", e.config.DefaultTimeout)

	// Build request body.
	var bodyReader io.Reader
	var contentType string
	if rawBody, ok := params["body"]; ok && rawBody != nil {
		if s, ok := rawBody.(string); ok {
			bodyReader = strings.NewReader(s)
		} else {
			b, err := json.Marshal(rawBody)
			if err != nil {
				return nil, schema.NewError(schema.ErrCodeExecution, "http_request: failed to marshal body as JSON").WithCause(err)
			}
			bodyReader = strings.NewReader(string(b))
			contentType = "application/json"
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http_request: failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range mapParam(params, "headers") {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http_request: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "http_request: failed to read response body").WithCause(err)
	}
	durationMs := time.Since(start).Milliseconds()

	// Non-2xx is a step failure.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"http_request: %s %s returned %s", method, rawURL, resp.Status).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": string(raw)})
	}

	// JSON content types are parsed; anything else stays a raw string.
	respContentType := resp.Header.Get("Content-Type")
	var body any = string(raw)
	if strings.Contains(respContentType, "application/json") && len(raw) > 0 {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			body = parsed
		}
	}

	// Optional jq extraction of the parsed body.
	if extract := stringParam(params, "extract", ""); extract != "" {
		extracted, err := e.jq.Apply(ctx, extract, body)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"http_request: extract %q failed: %s", extract, err.Error()).WithCause(err)
		}
		body = extracted
	}

	result := map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"content_type": respContentType,
		"body":         body,
		"duration_ms":  durationMs,
	}

	return &Output{
		Result: result,
		Delta:  map[string]any{"httpResult": body},
	}, nil
}

var _ Executor = (*HTTPRequestExecutor)(nil)
