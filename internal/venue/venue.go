// Package venue normalizes exchange-specific websocket frames into
// domain.BookUpdate values. Each supported wire format is one Normalizer
// variant; the set is closed and extended only by adding a variant here.
package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Normalizer decodes one venue's wire format.
type Normalizer interface {
	// Variant names the wire format this normalizer speaks.
	Variant() string

	// Decode parses a single raw frame. It returns the update and true when
	// the frame moved the top of book; false with a nil error for frames
	// that carry no price data (subscription acks, heartbeats, pongs); and
	// a *domain.DecodeError when the payload cannot be understood.
	Decode(raw []byte) (domain.BookUpdate, bool, error)
}

// Factory builds a normalizer bound to a configured exchange ID.
type Factory func(exchange string) Normalizer

// Registry maps variant names to normalizer factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with all built-in variants registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("binance", func(ex string) Normalizer { return NewBinance(ex) })
	r.Register("bybit", func(ex string) Normalizer { return NewBybit(ex) })
	r.Register("coinbase", func(ex string) Normalizer { return NewCoinbase(ex) })
	r.Register("okx", func(ex string) Normalizer { return NewOKX(ex) })
	return r
}

// Register adds or replaces a variant.
func (r *Registry) Register(variant string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[variant] = f
}

// New builds a normalizer for the variant, bound to the exchange ID that
// will be stamped on every update it produces.
func (r *Registry) New(variant, exchange string) (Normalizer, error) {
	r.mu.RLock()
	f, ok := r.factories[variant]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("venue: unknown variant %q", variant)
	}
	return f(exchange), nil
}

// Variants returns the registered variant names, sorted.
func (r *Registry) Variants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeErr(exchange, reason string, err error) error {
	return &domain.DecodeError{Exchange: exchange, Reason: reason, Err: err}
}

// parseDecimal converts a wire price/size string without going through
// float64.
func parseDecimal(exchange, field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, decodeErr(exchange, "empty "+field, nil)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, decodeErr(exchange, "bad "+field, err)
	}
	return d, nil
}
