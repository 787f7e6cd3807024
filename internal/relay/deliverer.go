package relay

import "context"

// Deliverer performs one outbound notification to a recipient. A nil error
// is a success; anything else (including a panic) is counted as a failure.
type Deliverer interface {
	Deliver(ctx context.Context, to Recipient) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, to Recipient) error

func (f DelivererFunc) Deliver(ctx context.Context, to Recipient) error { return f(ctx, to) }
