package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	breeze "github.com/beamo-co/breeze-go"
)

// Tool names
const (
	ToolInitiatePurchase  = "initiate_purchase"
	ToolListPending       = "list_pending"
	ToolFinishTransaction = "finish_transaction"
	ToolHandleCallbackURL = "handle_callback_url"
	ToolSyncEntitlements  = "sync_entitlements"
)

const (
	defaultName    = "breeze"
	defaultVersion = "1.0.0"
)

type serverOptions struct {
	name    string
	version string
	logger  *zap.Logger
}

// Option configures NewServer
type Option func(*serverOptions)

// WithImplementation sets the name and version reported to clients
func WithImplementation(name, version string) Option {
	return func(o *serverOptions) {
		o.name = name
		o.version = version
	}
}

// WithLogger sets the logger used for tool calls
func WithLogger(logger *zap.Logger) Option {
	return func(o *serverOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type toolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// NewServer builds an MCP server whose tools drive engine
func NewServer(engine Engine, opts ...Option) *mcpsdk.Server {
	o := &serverOptions{name: defaultName, version: defaultVersion, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    o.name,
		Version: o.version,
	}, nil)

	t := &tools{engine: engine}
	add := func(name, description, schema string, h toolHandler) {
		server.AddTool(&mcpsdk.Tool{
			Name:        name,
			Description: description,
			InputSchema: json.RawMessage(schema),
		}, adapt(name, h, o.logger))
	}

	add(ToolInitiatePurchase,
		"Create a Breeze payment page for a product and track it until the purchase resolves.",
		`{"type": "object", "properties": {"productId": {"type": "string"}, "productType": {"type": "string", "enum": ["consumable", "non_consumable", "auto_renewable", "non_renewable"]}}, "required": ["productId", "productType"]}`,
		t.initiatePurchase)
	add(ToolListPending,
		"List purchase intents that have not been finished.",
		`{"type": "object"}`,
		t.listPending)
	add(ToolFinishTransaction,
		"Acknowledge a delivered transaction so it stops being tracked.",
		`{"type": "object", "properties": {"id": {"type": "string"}}, "required": ["id"]}`,
		t.finishTransaction)
	add(ToolHandleCallbackURL,
		"Process a payment return URL carrying a signed notification.",
		`{"type": "object", "properties": {"url": {"type": "string"}}, "required": ["url"]}`,
		t.handleCallbackURL)
	add(ToolSyncEntitlements,
		"Fetch current entitlements and deliver purchases whose notification was missed.",
		`{"type": "object"}`,
		t.syncEntitlements)

	return server
}

// adapt converts a toolHandler into an SDK handler. Handler errors become
// IsError results so the agent can read them.
func adapt(name string, h toolHandler, logger *zap.Logger) mcpsdk.ToolHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := make(map[string]interface{})
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Errorf("failed to unmarshal arguments: %w", err)), nil
			}
		}

		out, err := h(ctx, args)
		if err != nil {
			logger.Debug("tool call failed", zap.String("tool", name), zap.Error(err))
			return errorResult(err), nil
		}

		text, err := json.Marshal(out)
		if err != nil {
			return errorResult(fmt.Errorf("failed to marshal result: %w", err)), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
		}, nil
	}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}

type tools struct {
	engine Engine
}

func (t *tools) initiatePurchase(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	productID, err := stringArg(args, "productId")
	if err != nil {
		return nil, err
	}
	productType, err := stringArg(args, "productType")
	if err != nil {
		return nil, err
	}

	intent, err := t.engine.Initiate(ctx, productID, breeze.ProductType(productType))
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func (t *tools) listPending(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"intents": t.engine.Pending()}, nil
}

func (t *tools) finishTransaction(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := stringArg(args, "id")
	if err != nil {
		return nil, err
	}
	t.engine.Finish(id)
	return map[string]interface{}{"finished": id}, nil
}

func (t *tools) handleCallbackURL(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rawURL, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"handled": t.engine.HandleURL(ctx, rawURL)}, nil
}

func (t *tools) syncEntitlements(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	n, err := t.engine.SyncEntitlements(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"delivered": n}, nil
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return v, nil
}
