package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// ListenCmd creates a Bubble Tea command that waits for the next value on ch.
// Returns nil when the context is cancelled or the channel is closed.
func ListenCmd[T any](ctx context.Context, ch <-chan T) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			return v
		}
	}
}

// Listener holds a broker subscription for use from a Bubble Tea update loop.
// After handling a received value, call Listen again to keep receiving.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan T
}

// NewListener subscribes to the broker. The subscription is cleaned up when
// ctx is cancelled.
func NewListener[T any](ctx context.Context, broker *Broker[T]) *Listener[T] {
	return &Listener[T]{
		ctx: ctx,
		ch:  broker.Subscribe(ctx),
	}
}

// Listen returns a tea.Cmd that resolves with the next received value.
func (l *Listener[T]) Listen() tea.Cmd {
	return ListenCmd(l.ctx, l.ch)
}
