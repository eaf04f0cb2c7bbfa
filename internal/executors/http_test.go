package executors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPExecutor() *HTTPRequestExecutor {
	return NewHTTPRequestExecutor(HTTPConfig{}, expressions.NewGoJQEngine())
}

func TestHTTPRequest_JSONResponseParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7, "name": "ada"}`))
	}))
	defer srv.Close()

	out, err := newHTTPExecutor().Execute(context.Background(), Input{
		Config: map[string]any{"url": srv.URL},
	})
	require.NoError(t, err)

	body := out.Delta["httpResult"]
	require.IsType(t, map[string]any{}, body)
	assert.Equal(t, "ada", body.(map[string]any)["name"])

	result := out.Result.(map[string]any)
	assert.Equal(t, 200, result["status_code"])
}

func TestHTTPRequest_NonJSONBodyRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	out, err := newHTTPExecutor().Execute(context.Background(), Input{
		Config: map[string]any{"url": srv.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, "plain text", out.Delta["httpResult"])
}

func TestHTTPRequest_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newHTTPExecutor().Execute(context.Background(), Input{
		Config: map[string]any{"url": srv.URL},
	})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExecution, fe.Code)
	assert.Equal(t, 500, fe.Details["status_code"])
}

func TestHTTPRequest_PostBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Custom"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	out, err := newHTTPExecutor().Execute(context.Background(), Input{
		Config: map[string]any{
			"url":     srv.URL,
			"method":  "POST",
			"headers": map[string]any{"X-Custom": "v"},
			"body":    map[string]any{"k": "v"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 201, out.Result.(map[string]any)["status_code"])
}

func TestHTTPRequest_ExtractWithJQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"items": [1, 2, 3]}}`))
	}))
	defer srv.Close()

	out, err := newHTTPExecutor().Execute(context.Background(), Input{
		Config: map[string]any{
			"url":     srv.URL,
			"extract": ".data.items | length",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Delta["httpResult"])
}

func TestHTTPRequest_MissingURL(t *testing.T) {
	_, err := newHTTPExecutor().Execute(context.Background(), Input{Config: map[string]any{}})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestHTTPRequest_InvalidURLScheme(t *testing.T) {
	_, err := newHTTPExecutor().Execute(context.Background(), Input{
		Config: map[string]any{"url": "ftp://example.com"},
	})
	require.Error(t, err)
}
