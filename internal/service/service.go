// Package service contains the application services: the client-credentials
// token issuer, the bearer token authorizer, client administration and
// operator authentication.
package service

import (
	"context"
	"time"
)

// DefaultStoreTimeout bounds every storage round-trip made by a service.
const DefaultStoreTimeout = 2 * time.Second

// withStoreTimeout derives a context bounded by d; d <= 0 keeps ctx as is.
func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
