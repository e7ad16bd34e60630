// Package notify delivers the engine's emails.
//
// [Mailer] renders each message from an HTML template and hands it to a
// [Transport]; [SMTPTransport] is the production transport. [LogNotifier]
// writes messages to a zap logger instead of sending them and is meant for
// local development.
package notify
