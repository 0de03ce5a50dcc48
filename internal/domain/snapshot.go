package domain

import "time"

// Named collections of the reconstructed state.
const (
	CollectionEquities  = "equities"
	CollectionOrders    = "orders"
	CollectionPortfolio = "portfolio"
)

// Snapshot is an immutable view of the reconstructed server state. Data must
// never be mutated by readers; every update produces a new tree.
type Snapshot struct {
	Sequence  uint64         `json:"sequence"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Collection returns the named top-level collection, or nil.
func (s Snapshot) Collection(name string) map[string]any {
	if s.Data == nil {
		return nil
	}
	m, _ := s.Data[name].(map[string]any)
	return m
}

// Equities returns the equities-by-symbol collection.
func (s Snapshot) Equities() map[string]any { return s.Collection(CollectionEquities) }

// Orders returns the orders-by-id collection.
func (s Snapshot) Orders() map[string]any { return s.Collection(CollectionOrders) }

// Portfolio returns the portfolio collection.
func (s Snapshot) Portfolio() map[string]any { return s.Collection(CollectionPortfolio) }

// DeltaType distinguishes full replacements from incremental updates.
type DeltaType string

const (
	DeltaFull  DeltaType = "FULL"
	DeltaDelta DeltaType = "DELTA"
)
