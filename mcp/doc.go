// Package mcp exposes a Breeze engine to agent hosts as Model Context Protocol
// tools, using the official Go MCP SDK (github.com/modelcontextprotocol/go-sdk).
//
// # Tools
//
//   - initiate_purchase: create a payment page and track the intent
//   - list_pending: list unresolved purchase intents
//   - finish_transaction: acknowledge a delivered transaction
//   - handle_callback_url: feed a payment return URL to the engine
//   - sync_entitlements: reconcile backend entitlements with tracked intents
//
// # Usage
//
//	engine, _ := breeze.New(breeze.WithConfig(cfg), ...)
//	server := mcp.NewServer(engine, mcp.WithLogger(logger))
//	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
//	    log.Fatal(err)
//	}
package mcp
