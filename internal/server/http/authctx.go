package httpserver

import (
	"context"

	"github.com/and161185/gatekeeper/internal/service"
	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const (
	clientKey   ctxKey = "gk.client"
	operatorKey ctxKey = "gk.operator"
	usageKey    ctxKey = "gk.usage"
)

// WithClient stores the authorized API client in context.
func WithClient(ctx context.Context, c *service.AuthorizedClient) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// ClientFromCtx fetches the authorized API client from context.
func ClientFromCtx(ctx context.Context) (*service.AuthorizedClient, bool) {
	c, ok := ctx.Value(clientKey).(*service.AuthorizedClient)
	return c, ok && c != nil
}

// WithOperator stores the authenticated operator name in context.
func WithOperator(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operatorKey, name)
}

// OperatorFromCtx fetches the operator name from context.
func OperatorFromCtx(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(operatorKey).(string)
	return v, ok && v != ""
}

// usageSlot is filled by authentication so the outer usage observer,
// which runs before the caller is known, can attribute the request.
type usageSlot struct {
	clientID uuid.UUID
}

func withUsageSlot(ctx context.Context, s *usageSlot) context.Context {
	return context.WithValue(ctx, usageKey, s)
}

func usageSlotFromCtx(ctx context.Context) *usageSlot {
	s, _ := ctx.Value(usageKey).(*usageSlot)
	return s
}
