package provider

import (
	"context"
	"fmt"

	"beacon/pkg/circuitbreaker"
)

// CircuitBreakerBalanceProvider guards a balance provider with a circuit
// breaker so a flapping upstream stops being queried for a while.
type CircuitBreakerBalanceProvider struct {
	provider BalanceProvider
	cb       *circuitbreaker.Wrapper
}

func WrapBalanceWithCircuitBreaker(p BalanceProvider, cfg circuitbreaker.Config) *CircuitBreakerBalanceProvider {
	return &CircuitBreakerBalanceProvider{
		provider: p,
		cb:       circuitbreaker.NewWrapper(cfg),
	}
}

func (p *CircuitBreakerBalanceProvider) Name() string {
	return p.provider.Name()
}

func (p *CircuitBreakerBalanceProvider) Balance(ctx context.Context, principal string) (float64, error) {
	result, err := p.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return p.provider.Balance(ctx, principal)
	})
	if err != nil {
		if p.cb.IsOpen() {
			return 0, fmt.Errorf("circuit breaker is open for %s: %w", p.provider.Name(), err)
		}
		return 0, err
	}

	balance, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("provider returned invalid result type")
	}
	return balance, nil
}

type CircuitBreakerCreatorProvider struct {
	provider CreatorStatusProvider
	cb       *circuitbreaker.Wrapper
}

func WrapCreatorWithCircuitBreaker(p CreatorStatusProvider, cfg circuitbreaker.Config) *CircuitBreakerCreatorProvider {
	return &CircuitBreakerCreatorProvider{
		provider: p,
		cb:       circuitbreaker.NewWrapper(cfg),
	}
}

func (p *CircuitBreakerCreatorProvider) IsCreator(ctx context.Context, canisterID string) (bool, error) {
	result, err := p.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return p.provider.IsCreator(ctx, canisterID)
	})
	if err != nil {
		if p.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for creator status: %w", err)
		}
		return false, err
	}

	isCreator, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("provider returned invalid result type")
	}
	return isCreator, nil
}
