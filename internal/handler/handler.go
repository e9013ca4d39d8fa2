// Package handler maps event names to the code that processes them.
package handler

import (
	"context"
	"fmt"

	apperrors "fanout/pkg/errors"
	"fanout/pkg/models"
)

// Handler processes one inbound message. A non-nil error leaves the message
// on the queue for redelivery.
type Handler interface {
	Handle(ctx context.Context, msg *models.InboundMessage) error
}

type HandlerFunc func(ctx context.Context, msg *models.InboundMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg *models.InboundMessage) error {
	return f(ctx, msg)
}

// AsyncFunc starts the work and reports completion on the returned channel.
// A closed channel without a value counts as success.
type AsyncFunc func(ctx context.Context, msg *models.InboundMessage) <-chan error

// Handle blocks until the started work completes. Cancellation of ctx is left
// to the handler; dispatch never abandons a running handler.
func (f AsyncFunc) Handle(ctx context.Context, msg *models.InboundMessage) error {
	done := f(ctx, msg)
	if done == nil {
		return nil
	}
	return <-done
}

// Adapt converts the supported function shapes into a Handler. Functions that
// do not take the message are rejected.
func Adapt(fn interface{}) (Handler, error) {
	if isNilFunc(fn) {
		return nil, apperrors.ErrInvalidHandler.WithMessage("handler is nil")
	}

	switch h := fn.(type) {
	case Handler:
		return h, nil
	case func(context.Context, *models.InboundMessage) error:
		return HandlerFunc(h), nil
	case func(*models.InboundMessage) error:
		return HandlerFunc(func(_ context.Context, msg *models.InboundMessage) error {
			return h(msg)
		}), nil
	case func(*models.InboundMessage):
		return HandlerFunc(func(_ context.Context, msg *models.InboundMessage) error {
			h(msg)
			return nil
		}), nil
	case func(context.Context, *models.InboundMessage) <-chan error:
		return AsyncFunc(h), nil
	case func(), func() error, func(context.Context), func(context.Context) error:
		return nil, apperrors.ErrInvalidHandler.
			WithMessage(fmt.Sprintf("handler %T takes no message parameter", fn))
	default:
		return nil, apperrors.ErrInvalidHandler.
			WithMessage(fmt.Sprintf("unsupported handler type %T", fn))
	}
}

// isNilFunc reports whether fn is nil, either untyped or as a nil value of one
// of the accepted function shapes.
func isNilFunc(fn interface{}) bool {
	switch h := fn.(type) {
	case nil:
		return true
	case HandlerFunc:
		return h == nil
	case AsyncFunc:
		return h == nil
	case func(context.Context, *models.InboundMessage) error:
		return h == nil
	case func(*models.InboundMessage) error:
		return h == nil
	case func(*models.InboundMessage):
		return h == nil
	case func(context.Context, *models.InboundMessage) <-chan error:
		return h == nil
	}
	return false
}

func isAsync(h Handler) bool {
	_, ok := h.(AsyncFunc)
	return ok
}
