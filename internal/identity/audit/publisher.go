package audit

import (
	"context"

	"idstore/pkg/requestcontext"
)

// Sink is an append-only destination for audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is the surface domain services publish through.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Publisher stamps events from the request context and hands them to a
// sink. Swap the sink to change where events land without touching the
// emitting code.
type Publisher struct {
	sink Sink
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.ActorID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	return p.sink.Append(ctx, event)
}

// ChannelPublisher decouples emitters from slow sinks through a buffered
// inbox drained by a Worker. Emit blocks only when the buffer is full.
type ChannelPublisher struct {
	publisher *Publisher
	inbox     chan<- Event
}

func NewChannelPublisher(inbox chan<- Event) *ChannelPublisher {
	cp := &ChannelPublisher{inbox: inbox}
	cp.publisher = NewPublisher(sinkFunc(cp.send))
	return cp
}

func (c *ChannelPublisher) Emit(ctx context.Context, event Event) error {
	return c.publisher.Emit(ctx, event)
}

func (c *ChannelPublisher) send(ctx context.Context, event Event) error {
	select {
	case c.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sinkFunc func(ctx context.Context, event Event) error

func (f sinkFunc) Append(ctx context.Context, event Event) error {
	return f(ctx, event)
}
