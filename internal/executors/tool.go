package executors

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/stepflow/pkg/schema"
)

// ToolInvoker invokes a named remote tool with a parameter map.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolName string, params map[string]any) (any, error)
}

// MCPToolClient is a ToolInvoker backed by an MCP server reached over stdio.
// The connection is established lazily on first use and reused afterwards.
type MCPToolClient struct {
	command string
	args    []string

	once    sync.Once
	initErr error
	client  *client.Client
}

// NewMCPToolClient creates a ToolInvoker that launches the given MCP server
// command on first invocation.
func NewMCPToolClient(command string, args ...string) *MCPToolClient {
	return &MCPToolClient{command: command, args: args}
}

func (c *MCPToolClient) connect(ctx context.Context) error {
	c.once.Do(func() {
		mcpClient, err := client.NewStdioMCPClient(c.command, c.args)
		if err != nil {
			c.initErr = schema.NewErrorf(schema.ErrCodeExecution, "tool: create MCP client: %s", err.Error()).WithCause(err)
			return
		}
		if err := mcpClient.Start(ctx); err != nil {
			c.initErr = schema.NewErrorf(schema.ErrCodeExecution, "tool: start MCP client: %s", err.Error()).WithCause(err)
			return
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.Capabilities = mcp.ClientCapabilities{}
		initReq.Params.ClientInfo = mcp.Implementation{
			Name:    "stepflow",
			Version: "1.0.0",
		}
		if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
			c.initErr = schema.NewErrorf(schema.ErrCodeExecution, "tool: initialize MCP client: %s", err.Error()).WithCause(err)
			return
		}
		c.client = mcpClient
	})
	return c.initErr
}

// Invoke calls the named tool and returns its textual result.
func (c *MCPToolClient) Invoke(ctx context.Context, toolName string, params map[string]any) (any, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	res, err := c.client.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: params,
		},
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "tool %q: %s", toolName, err.Error()).WithCause(err)
	}

	var texts []string
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	joined := strings.Join(texts, "\n")

	if res.IsError {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "tool %q failed: %s", toolName, joined)
	}
	return joined, nil
}

// Close shuts down the MCP connection if it was established.
func (c *MCPToolClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ToolCallExecutor performs the tool_call step kind: it invokes a named
// remote tool with a template-substituted parameter map.
type ToolCallExecutor struct {
	invoker ToolInvoker
}

// NewToolCallExecutor creates a new tool_call executor.
func NewToolCallExecutor(invoker ToolInvoker) *ToolCallExecutor {
	return &ToolCallExecutor{invoker: invoker}
}

func (e *ToolCallExecutor) Kind() schema.StepKind { return schema.StepKindToolCall }

func (e *ToolCallExecutor) Execute(ctx context.Context, input Input) (*Output, error) {
	toolName := stringParam(input.Config, "tool", "")
	if toolName == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "tool_call: missing required config 'tool'")
	}
	params := mapParam(input.Config, "parameters")

	result, err := e.invoker.Invoke(ctx, toolName, params)
	if err != nil {
		return nil, err
	}

	return &Output{
		Result: result,
		Delta:  map[string]any{"toolResult": result},
	}, nil
}

var _ Executor = (*ToolCallExecutor)(nil)
var _ ToolInvoker = (*MCPToolClient)(nil)
