package objects

import (
	"context"

	"github.com/goliatone/go-automate"
)

// BeforeDispatcher runs before the automation object is built.
type BeforeDispatcher interface {
	BeforeDispatch(ctx context.Context, opts automate.DeliveryOptions) error
}

// AffinityMarker records which servers execute the delivery.
type AffinityMarker interface {
	MarkExecutionAffinity(ctx context.Context) error
}

// AfterDispatcher receives the lower-cased result code once delivery ends.
type AfterDispatcher interface {
	AfterDispatch(ctx context.Context, resultCode string) error
}
