// Package messaging provides interfaces.Messenger implementations used to
// reach a secret owner during escalation.
//
// The core never formats transport payloads. LogMessenger records messages
// through slog, WebhookMessenger posts the Message as JSON to an HTTP endpoint
// operated by the real email/SMS gateway, and Router picks a Messenger per
// channel. Every failure wraps interfaces.ErrMessagingFailure so the scheduler
// can treat it as retryable.
package messaging
