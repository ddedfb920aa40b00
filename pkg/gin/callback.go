// Package gin serves the Breeze payment return page from a gin router.
//
// When the app uses an http loopback address as its redirect instead of a
// custom scheme, the payment page sends the browser to this handler, which
// forwards the full URL to the engine.
package gin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

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

// CallbackOptions is the options for the CallbackHandler.
type CallbackOptions struct {
	Page string
}

// Options is the type for the options for the CallbackHandler.
type Options func(*CallbackOptions)

// WithPage replaces the page shown after the redirect.
func WithPage(html string) Options {
	return func(options *CallbackOptions) {
		options.Page = html
	}
}

// CallbackHandler forwards the request URL to h and renders the return page.
// The response never reveals whether the URL carried a valid notification.
func CallbackHandler(h URLHandler, opts ...Options) gin.HandlerFunc {
	options := &CallbackOptions{Page: DefaultPage}
	for _, opt := range opts {
		opt(options)
	}

	return func(c *gin.Context) {
		h.HandleURL(c.Request.Context(), breeze.RequestURL(c.Request))
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(options.Page))
	}
}

var _ URLHandler = (*breeze.Engine)(nil)
