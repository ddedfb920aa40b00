package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	breeze "github.com/beamo-co/breeze-go"
)

type fakeEngine struct {
	intents  []breeze.PurchaseIntent
	initErr  error
	finished []string
	urls     []string
	synced   int
	syncErr  error
	lastType breeze.ProductType
}

func (f *fakeEngine) Initiate(ctx context.Context, productID string, productType breeze.ProductType) (*breeze.PurchaseIntent, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.lastType = productType
	intent := breeze.PurchaseIntent{
		ID:          "pp_1",
		ProductID:   productID,
		ProductType: productType,
		PaymentURL:  "https://pay.breeze.cash/pp_1",
		CreatedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Status:      breeze.IntentPending,
	}
	f.intents = append(f.intents, intent)
	return &intent, nil
}

func (f *fakeEngine) Pending() []breeze.PurchaseIntent { return f.intents }

func (f *fakeEngine) Finish(id string) { f.finished = append(f.finished, id) }

func (f *fakeEngine) HandleURL(ctx context.Context, rawURL string) bool {
	f.urls = append(f.urls, rawURL)
	return true
}

func (f *fakeEngine) SyncEntitlements(ctx context.Context) (int, error) {
	return f.synced, f.syncErr
}

// makeCallToolRequest builds a *mcpsdk.CallToolRequest for testing.
func makeCallToolRequest(name string, args map[string]interface{}) *mcpsdk.CallToolRequest {
	argsBytes, _ := json.Marshal(args)
	return &mcpsdk.CallToolRequest{Params: &mcpsdk.CallToolParamsRaw{Name: name, Arguments: argsBytes}}
}

func resultText(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func connect(t *testing.T, engine Engine) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	server := NewServer(engine)
	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestServer_ListTools(t *testing.T) {
	session := connect(t, &fakeEngine{})

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolInitiatePurchase, ToolListPending, ToolFinishTransaction,
		ToolHandleCallbackURL, ToolSyncEntitlements,
	}, names)
}

func TestServer_InitiateAndList(t *testing.T) {
	engine := &fakeEngine{}
	session := connect(t, engine)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      ToolInitiatePurchase,
		Arguments: map[string]interface{}{"productId": "sku_1", "productType": "consumable"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var intent breeze.PurchaseIntent
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &intent))
	assert.Equal(t, "pp_1", intent.ID)
	assert.Equal(t, breeze.ProductTypeConsumable, engine.lastType)

	res, err = session.CallTool(ctx, &mcpsdk.CallToolParams{Name: ToolListPending, Arguments: map[string]interface{}{}})
	require.NoError(t, err)
	var listed struct {
		Intents []breeze.PurchaseIntent `json:"intents"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &listed))
	require.Len(t, listed.Intents, 1)
	assert.Equal(t, "sku_1", listed.Intents[0].ProductID)
}

func TestServer_FinishAndHandleURL(t *testing.T) {
	engine := &fakeEngine{}
	handler := adapt(ToolFinishTransaction, (&tools{engine: engine}).finishTransaction, nil)

	res, err := handler(context.Background(), makeCallToolRequest(ToolFinishTransaction, map[string]interface{}{"id": "pp_9"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{"pp_9"}, engine.finished)

	handler = adapt(ToolHandleCallbackURL, (&tools{engine: engine}).handleCallbackURL, nil)
	res, err = handler(context.Background(), makeCallToolRequest(ToolHandleCallbackURL, map[string]interface{}{"url": "myapp://breeze-payment?signature=x"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"handled": true}`, resultText(t, res))
	assert.Equal(t, []string{"myapp://breeze-payment?signature=x"}, engine.urls)
}

func TestServer_ToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		engine  *fakeEngine
		tool    string
		handler func(*tools) toolHandler
		args    map[string]interface{}
		want    string
	}{
		{
			name:    "missing product id",
			engine:  &fakeEngine{},
			tool:    ToolInitiatePurchase,
			handler: func(t *tools) toolHandler { return t.initiatePurchase },
			args:    map[string]interface{}{"productType": "consumable"},
			want:    `missing required argument "productId"`,
		},
		{
			name:    "engine error",
			engine:  &fakeEngine{initErr: breeze.NewPurchaseError(breeze.ErrCodeNotConfigured, "breeze is not configured", nil)},
			tool:    ToolInitiatePurchase,
			handler: func(t *tools) toolHandler { return t.initiatePurchase },
			args:    map[string]interface{}{"productId": "sku_1", "productType": "consumable"},
			want:    "not_configured: breeze is not configured",
		},
		{
			name:    "blank id",
			engine:  &fakeEngine{},
			tool:    ToolFinishTransaction,
			handler: func(t *tools) toolHandler { return t.finishTransaction },
			args:    map[string]interface{}{"id": "  "},
			want:    `missing required argument "id"`,
		},
		{
			name:    "sync failure",
			engine:  &fakeEngine{syncErr: errors.New("backend down")},
			tool:    ToolSyncEntitlements,
			handler: func(t *tools) toolHandler { return t.syncEntitlements },
			want:    "backend down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := adapt(tt.tool, tt.handler(&tools{engine: tt.engine}), nil)
			res, err := h(context.Background(), makeCallToolRequest(tt.tool, tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
}

func TestServer_BadArguments(t *testing.T) {
	h := adapt(ToolFinishTransaction, (&tools{engine: &fakeEngine{}}).finishTransaction, nil)
	req := &mcpsdk.CallToolRequest{Params: &mcpsdk.CallToolParamsRaw{Name: ToolFinishTransaction, Arguments: json.RawMessage(`[1,2]`)}}

	res, err := h(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "failed to unmarshal arguments")
}

func TestServer_SyncEntitlements(t *testing.T) {
	session := connect(t, &fakeEngine{synced: 2})

	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: ToolSyncEntitlements, Arguments: map[string]interface{}{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"delivered": 2}`, resultText(t, res))
}
