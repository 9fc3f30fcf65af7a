package keeper

import (
	"sync/atomic"

	sdkmath "cosmossdk.io/math"

	"github.com/hcfprotocol/hcfchain/x/ledger/types"
)

// AtomicCounter is a lock-free monotonic counter using sync/atomic.
type AtomicCounter struct {
	value int64
}

// Inc increments the counter by 1.
func (c *AtomicCounter) Inc() { atomic.AddInt64(&c.value, 1) }

// Add increments the counter by delta.
func (c *AtomicCounter) Add(delta int64) { atomic.AddInt64(&c.value, delta) }

// Get returns the current counter value.
func (c *AtomicCounter) Get() int64 { return atomic.LoadInt64(&c.value) }

// Reset sets the counter to 0.
func (c *AtomicCounter) Reset() { atomic.StoreInt64(&c.value, 0) }

// ModuleMetrics is the in-process telemetry for the ledger. Counters are
// advisory only; consensus state never reads them.
type ModuleMetrics struct {
	TransfersBuy   AtomicCounter
	TransfersSell  AtomicCounter
	TransfersPlain AtomicCounter
	TaxCollected   AtomicCounter
}

// NewModuleMetrics creates a zeroed metrics set.
func NewModuleMetrics() *ModuleMetrics {
	return &ModuleMetrics{}
}

// RecordTransfer tallies one transfer and the tax it collected. Tax
// amounts beyond int64 range only saturate the advisory counter.
func (m *ModuleMetrics) RecordTransfer(kind types.TransferKind, tax sdkmath.Int) {
	switch kind {
	case types.TransferKindBuy:
		m.TransfersBuy.Inc()
	case types.TransferKindSell:
		m.TransfersSell.Inc()
	default:
		m.TransfersPlain.Inc()
	}
	if tax.IsInt64() {
		m.TaxCollected.Add(tax.Int64())
	}
}

// Reset zeroes every counter, used by tests.
func (m *ModuleMetrics) Reset() {
	m.TransfersBuy.Reset()
	m.TransfersSell.Reset()
	m.TransfersPlain.Reset()
	m.TaxCollected.Reset()
}
