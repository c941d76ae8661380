package provider

import (
	"context"
	"errors"
)

// ErrNotFound reports that a lookup completed but the provider has no data
// for the input, as opposed to the provider failing.
var ErrNotFound = errors.New("provider: not found")

// Location is the geo fact derived from an IP address. Timezone may be empty
// when the resolver does not report one.
type Location struct {
	Country  string `json:"country"`
	Region   string `json:"region"`
	City     string `json:"city"`
	Timezone string `json:"timezone,omitempty"`
}

type LocationResolver interface {
	Resolve(ctx context.Context, ip string) (*Location, error)
}

// BalanceProvider supplies one numeric balance fact for an identity. Name
// identifies the provider in logs and metrics and is the record field the
// balance lands in.
type BalanceProvider interface {
	Name() string
	Balance(ctx context.Context, principal string) (float64, error)
}

type CreatorStatusProvider interface {
	IsCreator(ctx context.Context, canisterID string) (bool, error)
}
