package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/stepflow/pkg/schema"
)

// AgentRequest is the wire contract of the external agent endpoint.
type AgentRequest struct {
	CorrelationID string `json:"correlationId"`
	SessionID     string `json:"sessionId"`
	Message       any    `json:"message"`
}

// AgentResponse is the agent endpoint's reply.
type AgentResponse struct {
	Content string          `json:"content"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// AgentClient invokes the external agent endpoint.
type AgentClient interface {
	Invoke(ctx context.Context, req AgentRequest) (*AgentResponse, error)
}

// HTTPAgentClient is the HTTP implementation of AgentClient.
type HTTPAgentClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPAgentClient creates an AgentClient posting to the given endpoint.
func NewHTTPAgentClient(endpoint string, timeout time.Duration) *HTTPAgentClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPAgentClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPAgentClient) Invoke(ctx context.Context, agentReq AgentRequest) (*AgentResponse, error) {
	payload, err := json.Marshal(agentReq)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "agent: failed to marshal request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "agent: failed to create request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "agent: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "agent: failed to read response").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"agent: endpoint returned %s", resp.Status).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": string(raw)})
	}

	var agentResp AgentResponse
	if err := json.Unmarshal(raw, &agentResp); err != nil {
		// Non-JSON reply: treat the whole body as content.
		agentResp = AgentResponse{Content: string(raw), Raw: raw}
	}
	if len(agentResp.Raw) == 0 {
		agentResp.Raw = raw
	}
	return &agentResp, nil
}

// AgentCallExecutor performs the agent_call step kind: it posts a
// template-substituted message to the agent endpoint with a fresh
// correlation/session id derived from the step id.
type AgentCallExecutor struct {
	client AgentClient
}

// NewAgentCallExecutor creates a new agent_call executor.
func NewAgentCallExecutor(client AgentClient) *AgentCallExecutor {
	return &AgentCallExecutor{client: client}
}

func (e *AgentCallExecutor) Kind() schema.StepKind { return schema.StepKindAgentCall }

func (e *AgentCallExecutor) Execute(ctx context.Context, input Input) (*Output, error) {
	message, ok := input.Config["message"]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "agent_call: missing required config 'message'")
	}

	req := AgentRequest{
		CorrelationID: fmt.Sprintf("%s-%s", input.StepID, uuid.NewString()),
		SessionID:     fmt.Sprintf("%s-%s", input.ExecutionID, input.StepID),
		Message:       message,
	}

	resp, err := e.client.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	var result any = resp.Content
	if resp.Content == "" && len(resp.Raw) > 0 {
		result = string(resp.Raw)
	}

	return &Output{
		Result: result,
		Delta:  map[string]any{"agentResult": result},
	}, nil
}

var _ Executor = (*AgentCallExecutor)(nil)
