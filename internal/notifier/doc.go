// Package notifier delivers owner alerts.
//
// An alert is a short text, optionally with an image, sent to the owner chat
// through a transport.Sender (the Telegram adapter). Delivery is rate limited
// and bounded by a send timeout; the caller only learns whether it worked.
//
// # History
//
// For debugging and operator visibility, the service keeps a small in-memory
// history of recently attempted alerts.
package notifier
