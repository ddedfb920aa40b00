package breeze

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// Engine Hook Context Types
// ============================================================================

// DeliveredContext is passed to hooks after a purchase was handed to the application
type DeliveredContext struct {
	Ctx         context.Context
	Transaction CompletedTransaction
	Timestamp   time.Time
}

// ExpiredContext is passed to hooks when an intent timed out
type ExpiredContext struct {
	Ctx    context.Context
	Intent PurchaseIntent
	Age    time.Duration
}

// FailedContext is passed to hooks when the backend denied an intent
type FailedContext struct {
	Ctx    context.Context
	Intent PurchaseIntent
	Result PollResult
}

// NotificationRejectedContext is passed to hooks when a payment return link
// was discarded. Reason is never surfaced to the caller of HandleURL.
type NotificationRejectedContext struct {
	Ctx    context.Context
	Reason error
}

// PollErrorContext is passed to hooks when polling an intent failed transiently
type PollErrorContext struct {
	Ctx      context.Context
	IntentID string
	Error    error
}

// ============================================================================
// Engine Hook Function Types
// ============================================================================

// OnDeliveredHook is called after the purchase handler returned.
// Any error returned will be logged.
type OnDeliveredHook func(DeliveredContext) error

// OnExpiredHook is called after an intent was removed for timing out
type OnExpiredHook func(ExpiredContext) error

// OnFailedHook is called after an intent was removed for an explicit failure status
type OnFailedHook func(FailedContext) error

// OnNotificationRejectedHook is called for every discarded notification
type OnNotificationRejectedHook func(NotificationRejectedContext) error

// OnPollErrorHook is called when a poll fails; the intent stays pending
type OnPollErrorHook func(PollErrorContext) error

type engineHooks struct {
	onDelivered            []OnDeliveredHook
	onExpired              []OnExpiredHook
	onFailed               []OnFailedHook
	onNotificationRejected []OnNotificationRejectedHook
	onPollError            []OnPollErrorHook
}

// ============================================================================
// Engine Hook Registration Options
// ============================================================================

// WithOnDeliveredHook registers a hook to execute after each delivery
func WithOnDeliveredHook(hook OnDeliveredHook) EngineOption {
	return func(e *Engine) {
		e.hooks.onDelivered = append(e.hooks.onDelivered, hook)
	}
}

// WithOnExpiredHook registers a hook to execute when an intent expires
func WithOnExpiredHook(hook OnExpiredHook) EngineOption {
	return func(e *Engine) {
		e.hooks.onExpired = append(e.hooks.onExpired, hook)
	}
}

// WithOnFailedHook registers a hook to execute when an intent is denied
func WithOnFailedHook(hook OnFailedHook) EngineOption {
	return func(e *Engine) {
		e.hooks.onFailed = append(e.hooks.onFailed, hook)
	}
}

// WithOnNotificationRejectedHook registers a hook to execute when a notification is discarded
func WithOnNotificationRejectedHook(hook OnNotificationRejectedHook) EngineOption {
	return func(e *Engine) {
		e.hooks.onNotificationRejected = append(e.hooks.onNotificationRejected, hook)
	}
}

// WithOnPollErrorHook registers a hook to execute when polling fails
func WithOnPollErrorHook(hook OnPollErrorHook) EngineOption {
	return func(e *Engine) {
		e.hooks.onPollError = append(e.hooks.onPollError, hook)
	}
}

// Hooks run without the engine lock held.

func (e *Engine) runDeliveredHooks(hc DeliveredContext) {
	for _, hook := range e.hooks.onDelivered {
		if err := hook(hc); err != nil {
			e.logger.Warn("delivered hook failed", zap.String("id", hc.Transaction.ID), zap.Error(err))
		}
	}
}

func (e *Engine) runExpiredHooks(hc ExpiredContext) {
	for _, hook := range e.hooks.onExpired {
		if err := hook(hc); err != nil {
			e.logger.Warn("expired hook failed", zap.String("id", hc.Intent.ID), zap.Error(err))
		}
	}
}

func (e *Engine) runFailedHooks(hc FailedContext) {
	for _, hook := range e.hooks.onFailed {
		if err := hook(hc); err != nil {
			e.logger.Warn("failed hook failed", zap.String("id", hc.Intent.ID), zap.Error(err))
		}
	}
}

func (e *Engine) runNotificationRejectedHooks(hc NotificationRejectedContext) {
	for _, hook := range e.hooks.onNotificationRejected {
		if err := hook(hc); err != nil {
			e.logger.Warn("notification rejected hook failed", zap.Error(err))
		}
	}
}

func (e *Engine) runPollErrorHooks(hc PollErrorContext) {
	for _, hook := range e.hooks.onPollError {
		if err := hook(hc); err != nil {
			e.logger.Warn("poll error hook failed", zap.String("id", hc.IntentID), zap.Error(err))
		}
	}
}
