package mcp

import (
	"context"

	breeze "github.com/beamo-co/breeze-go"
)

// Engine is the part of *breeze.Engine the tools drive
type Engine interface {
	Initiate(ctx context.Context, productID string, productType breeze.ProductType) (*breeze.PurchaseIntent, error)
	Pending() []breeze.PurchaseIntent
	Finish(id string)
	HandleURL(ctx context.Context, rawURL string) bool
	SyncEntitlements(ctx context.Context) (int, error)
}

var _ Engine = (*breeze.Engine)(nil)
