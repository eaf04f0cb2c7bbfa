package executors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentCall_InvokesEndpoint(t *testing.T) {
	var received AgentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": "agent says hi"}`))
	}))
	defer srv.Close()

	exec := NewAgentCallExecutor(NewHTTPAgentClient(srv.URL, 5*time.Second))
	out, err := exec.Execute(context.Background(), Input{
		ExecutionID: "exec-1",
		StepID:      "greet",
		Config:      map[string]any{"message": "hello {name}"},
	})
	require.NoError(t, err)

	assert.Equal(t, "agent says hi", out.Delta["agentResult"])
	assert.Equal(t, "hello {name}", received.Message)
	// Correlation id is derived from the step id, session id from the run.
	assert.Contains(t, received.CorrelationID, "greet-")
	assert.Equal(t, "exec-1-greet", received.SessionID)
}

func TestAgentCall_FreshCorrelationIDPerCall(t *testing.T) {
	seen := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AgentRequest
		json.NewDecoder(r.Body).Decode(&req)
		seen[req.CorrelationID] = true
		w.Write([]byte(`{"content": "ok"}`))
	}))
	defer srv.Close()

	exec := NewAgentCallExecutor(NewHTTPAgentClient(srv.URL, 5*time.Second))
	input := Input{ExecutionID: "e", StepID: "s", Config: map[string]any{"message": "m"}}
	for i := 0; i < 3; i++ {
		_, err := exec.Execute(context.Background(), input)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 3)
}

func TestAgentCall_NonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exec := NewAgentCallExecutor(NewHTTPAgentClient(srv.URL, 5*time.Second))
	_, err := exec.Execute(context.Background(), Input{
		ExecutionID: "e", StepID: "s",
		Config: map[string]any{"message": "m"},
	})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeExecution, fe.Code)
}

func TestAgentCall_MissingMessage(t *testing.T) {
	exec := NewAgentCallExecutor(NewHTTPAgentClient("http://unused", time.Second))
	_, err := exec.Execute(context.Background(), Input{Config: map[string]any{}})
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}
