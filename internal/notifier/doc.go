// Package notifier delivers group announcements to registered recipients
// over the transport. It is the Telegram side of relay.Deliverer.
package notifier
