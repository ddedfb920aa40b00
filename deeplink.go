package breeze

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SignatureParam is the query parameter carrying the notification token
const SignatureParam = "signature"

var (
	errMissingToken     = errors.New("missing signature parameter")
	errUnknownIntent    = errors.New("no pending intent for notification")
	errAlreadyResolved  = errors.New("intent already resolved")
	errProductMismatch  = errors.New("notification product does not match intent")
	errNotSuccessStatus = errors.New("notification status is not final")
)

// successStatuses are the notification statuses that confirm a purchase
var successStatuses = []string{"PAID", "SUCCEEDED", "PURCHASED"}

// IsPaymentLink reports whether rawURL is a payment return link for cfg
func IsPaymentLink(cfg *Config, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return matchesReturnPath(cfg, u)
}

// RequestURL rebuilds the absolute URL of an http loopback redirect so it can
// be passed to HandleURL
func RequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return u.String()
}

// matchesReturnPath accepts three shapes of return link: the app's custom
// scheme with the path as host (myapp://breeze-payment), the opaque form
// (myapp:breeze-payment), and http(s) links. An http(s) link matches when it
// is on the configured universal-link host at exactly the configured path, or
// on a loopback host with the path as its last segment.
func matchesReturnPath(cfg *Config, u *url.URL) bool {
	base, err := url.Parse(cfg.AppScheme)
	if err != nil {
		base = &url.URL{}
	}
	if base.Scheme != "" && !strings.EqualFold(u.Scheme, base.Scheme) && !isWebScheme(u.Scheme) {
		return false
	}

	for _, c := range []string{cfg.PaymentPath, cfg.CompletePath} {
		if c == "" {
			continue
		}
		if !isWebScheme(u.Scheme) {
			if strings.EqualFold(u.Host, c) || (u.Host == "" && u.Opaque == c) {
				return true
			}
			continue
		}
		trimmed := strings.TrimSuffix(u.Path, "/")
		if isWebScheme(base.Scheme) && base.Host != "" && strings.EqualFold(u.Host, base.Host) &&
			trimmed == path.Join("/", base.Path, c) {
			return true
		}
		if isLoopbackHost(u.Hostname()) && path.Base(trimmed) == c {
			return true
		}
	}
	return false
}

func isWebScheme(scheme string) bool {
	return strings.EqualFold(scheme, "http") || strings.EqualFold(scheme, "https")
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// HandleURL processes a deep link the application was opened with. It reports
// whether the link was a payment return link. Verification failures and stale
// or foreign notifications are discarded without an error; they never change
// engine state.
func (e *Engine) HandleURL(ctx context.Context, rawURL string) bool {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()
	if cfg == nil {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil || !matchesReturnPath(cfg, u) {
		return false
	}

	token := u.Query().Get(SignatureParam)
	if token == "" {
		e.reject(ctx, errMissingToken)
		return true
	}
	e.HandleNotification(ctx, token)
	return true
}

// HandleNotification verifies token and applies it. It reports whether the
// notification led to a delivery.
func (e *Engine) HandleNotification(ctx context.Context, token string) bool {
	e.mu.Lock()
	verifier := e.verifier
	e.mu.Unlock()
	if verifier == nil {
		e.reject(ctx, ErrNotConfigured)
		return false
	}

	n, err := verifier.Verify(token)
	if err != nil {
		e.reject(ctx, err)
		return false
	}

	e.mu.Lock()
	intent, ok := e.store.Get(n.PaymentPageID)
	switch {
	case !ok:
		e.mu.Unlock()
		e.reject(ctx, fmt.Errorf("%w: %s", errUnknownIntent, n.PaymentPageID))
		return false
	case intent.Delivered || intent.Status != IntentPending:
		e.mu.Unlock()
		e.reject(ctx, fmt.Errorf("%w: %s", errAlreadyResolved, n.PaymentPageID))
		return false
	case intent.ProductID != n.ProductID:
		e.mu.Unlock()
		e.logger.Warn("notification product mismatch",
			zap.String("id", n.PaymentPageID),
			zap.String("expected", intent.ProductID),
			zap.String("got", n.ProductID))
		e.reject(ctx, errProductMismatch)
		return false
	case !isSuccessStatus(n.Status):
		e.mu.Unlock()
		e.reject(ctx, fmt.Errorf("%w: %s", errNotSuccessStatus, n.Status))
		return false
	}

	now := e.now()
	intent.confirm(now)
	claimed := e.dispatcher.claim(intent)
	tx := completedFromNotification(intent, n, now)
	e.mu.Unlock()

	if !claimed {
		return false
	}
	return e.deliver(ctx, tx)
}

func (e *Engine) reject(ctx context.Context, reason error) {
	e.logger.Debug("notification discarded", zap.Error(reason))
	e.runNotificationRejectedHooks(NotificationRejectedContext{Ctx: ctx, Reason: reason})
}

func isSuccessStatus(status string) bool {
	for _, s := range successStatuses {
		if strings.EqualFold(status, s) {
			return true
		}
	}
	return false
}

func completedFromNotification(intent *PurchaseIntent, n *SignedNotification, now time.Time) CompletedTransaction {
	amount := n.PaymentAmount
	return CompletedTransaction{
		ID:               intent.ID,
		ProductID:        intent.ProductID,
		ProductType:      intent.ProductType,
		Status:           TransactionPurchased,
		Source:           SourceNotification,
		ConfirmedAt:      now,
		Amount:           &amount,
		SuccessPaymentID: n.SuccessPaymentID,
	}
}
