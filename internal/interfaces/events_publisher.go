package interfaces

import "context"

// EventPublisher delivers domain events to interested consumers after a
// commit is durable. Failures are reported to the caller but must not
// affect the committed state.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
