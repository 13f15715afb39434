/*

This file contains the in-memory price history the circuit breaker reads.
Samples are append-only and time-ordered; the window lookback never
interpolates, it returns the newest sample at or before the cutoff.

*/

package risk

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/definite-protocol/dne/internal/types"
)

// maxHistorySamples bounds memory; the breaker only ever looks back one
// price window, so old samples past the cap are discarded oldest-first.
const maxHistorySamples = 4096

// PriceSample is one recorded observation.
type PriceSample struct {
	Price     sdkmath.LegacyDec `json:"price"`
	Timestamp time.Time         `json:"timestamp"`
}

// PriceHistory is a bounded, time-ordered sample buffer.
type PriceHistory struct {
	mu      sync.RWMutex
	samples []PriceSample
}

// NewPriceHistory creates an empty history.
func NewPriceHistory() *PriceHistory {
	return &PriceHistory{}
}

// Record appends a sample. Prices must be positive and timestamps must not
// move backwards; a violated precondition rejects the sample.
func (h *PriceHistory) Record(price sdkmath.LegacyDec, ts time.Time) error {
	if price.IsNil() || !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", types.ErrInvalidParameter)
	}
	if ts.IsZero() {
		return fmt.Errorf("%w: price timestamp is required", types.ErrInvalidParameter)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.samples); n > 0 && ts.Before(h.samples[n-1].Timestamp) {
		return fmt.Errorf("%w: price timestamp %s precedes last recorded sample", types.ErrInvalidParameter, ts)
	}
	h.samples = append(h.samples, PriceSample{Price: price, Timestamp: ts})
	if len(h.samples) > maxHistorySamples {
		h.samples = h.samples[len(h.samples)-maxHistorySamples:]
	}
	return nil
}

// Latest returns the newest sample, if any.
func (h *PriceHistory) Latest() (PriceSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.samples) == 0 {
		return PriceSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// SampleAtOrBefore returns the newest sample with a timestamp at or before
// the cutoff.
func (h *PriceHistory) SampleAtOrBefore(cutoff time.Time) (PriceSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.samples) - 1; i >= 0; i-- {
		if !h.samples[i].Timestamp.After(cutoff) {
			return h.samples[i], true
		}
	}
	return PriceSample{}, false
}

// Len reports the number of retained samples.
func (h *PriceHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}
