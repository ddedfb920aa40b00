// Package echo serves the Breeze payment return page from an echo server.
package echo

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	breeze "github.com/beamo-co/breeze-go"
)

// DefaultPage is shown to the browser after the redirect, whatever the outcome
const DefaultPage = `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Payment Processing</title>
	<style>
		body {
			font-family: Arial, sans-serif;
			text-align: center;
			margin-top: 80px;
		}
	</style>
</head>
<body>
	<h2>Payment received</h2>
	<p>You can close this window and return to the app.</p>
</body>
</html>
`

// URLHandler consumes a return URL. *breeze.Engine implements it.
type URLHandler interface {
	HandleURL(ctx context.Context, rawURL string) bool
}

type callbackOptions struct {
	page string
}

// Option configures the CallbackHandler
type Option func(*callbackOptions)

// WithPage replaces the page shown after the redirect
func WithPage(html string) Option {
	return func(o *callbackOptions) {
		o.page = html
	}
}

// CallbackHandler forwards the request URL to h and renders the return page
func CallbackHandler(h URLHandler, opts ...Option) echo.HandlerFunc {
	o := &callbackOptions{page: DefaultPage}
	for _, opt := range opts {
		opt(o)
	}

	return func(c echo.Context) error {
		req := c.Request()
		h.HandleURL(req.Context(), breeze.RequestURL(req))
		return c.HTML(http.StatusOK, o.page)
	}
}

// Register mounts the handler on every return path of cfg
func Register(e *echo.Echo, cfg *breeze.Config, h URLHandler, opts ...Option) {
	handler := CallbackHandler(h, opts...)
	for _, p := range []string{cfg.PaymentPath, cfg.CompletePath} {
		if p == "" {
			continue
		}
		e.GET("/"+p, handler)
	}
}

var _ URLHandler = (*breeze.Engine)(nil)
