// Package settings persists register preferences in a generic key-value
// area so they survive restarts.
package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/registerpos/registerd/internal/cart"
)

const keyPrefix = "settings:"

// Well-known settings keys.
const (
	KeyPricingStrategy = "pricing_strategy"
	KeyTaxMode         = "tax_mode"
	KeyBranch          = "branch"
)

// Store is a Redis-backed settings store.
type Store struct {
	client *redis.Client
}

// NewStore constructs a settings store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the raw value for a key, or empty string when unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("settings: get %s: %w", key, err)
	}
	return value, nil
}

// Set stores the raw value for a key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

// PricingStrategy returns the active pricing strategy, defaulting to the
// catalog-price strategy when unset.
func (s *Store) PricingStrategy(ctx context.Context) (cart.PricingStrategy, error) {
	value, err := s.Get(ctx, KeyPricingStrategy)
	if err != nil {
		return "", err
	}
	switch cart.PricingStrategy(value) {
	case cart.StrategyLastSold:
		return cart.StrategyLastSold, nil
	default:
		return cart.StrategyDefault, nil
	}
}

// SetPricingStrategy persists the active pricing strategy.
func (s *Store) SetPricingStrategy(ctx context.Context, strategy cart.PricingStrategy) error {
	return s.Set(ctx, KeyPricingStrategy, string(strategy))
}

// TaxMode returns the active tax mode, defaulting to inclusive.
func (s *Store) TaxMode(ctx context.Context) (cart.TaxMode, error) {
	value, err := s.Get(ctx, KeyTaxMode)
	if err != nil {
		return "", err
	}
	switch cart.TaxMode(value) {
	case cart.TaxExclusive:
		return cart.TaxExclusive, nil
	default:
		return cart.TaxInclusive, nil
	}
}

// SetTaxMode persists the active tax mode.
func (s *Store) SetTaxMode(ctx context.Context, mode cart.TaxMode) error {
	return s.Set(ctx, KeyTaxMode, string(mode))
}

// Branch returns the selected branch id, or the given fallback when unset.
func (s *Store) Branch(ctx context.Context, fallback string) (string, error) {
	value, err := s.Get(ctx, KeyBranch)
	if err != nil {
		return "", err
	}
	if value == "" {
		return fallback, nil
	}
	return value, nil
}

// SetBranch persists the selected branch id.
func (s *Store) SetBranch(ctx context.Context, branchID string) error {
	return s.Set(ctx, KeyBranch, branchID)
}
