package domain

import "context"

// MarketSource loads markets from a venue so they can be resolved by id.
type MarketSource interface {
	Name() string
	Market(ctx context.Context, id string) (Market, error)
}
