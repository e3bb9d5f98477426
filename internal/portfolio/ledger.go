package portfolio

import (
	"github.com/shopspring/decimal"
)

// Entry is one asset row of the dual ledger: available is the unreserved
// part, total the full holding. 0 <= available <= total (modulo the fee
// reservation slack tolerated by the portfolio).
type Entry struct {
	Available decimal.Decimal
	Total     decimal.Decimal
}

func (e Entry) IsZero() bool {
	return e.Available.IsZero() && e.Total.IsZero()
}

// Ledger maps asset -> entry. It is not goroutine-safe on its own; the
// owning portfolio serializes access.
type Ledger struct {
	entries map[string]Entry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]Entry)}
}

func (l *Ledger) Entry(asset string) Entry {
	return l.entries[asset]
}

func (l *Ledger) SetEntry(asset string, e Entry) {
	l.entries[asset] = e
}

// AddAvailable shifts the available side of an asset by delta.
func (l *Ledger) AddAvailable(asset string, delta decimal.Decimal) Entry {
	e := l.entries[asset]
	e.Available = e.Available.Add(delta)
	l.entries[asset] = e
	return e
}

// AddBoth shifts available and total together, as a fill does.
func (l *Ledger) AddBoth(asset string, delta decimal.Decimal) Entry {
	e := l.entries[asset]
	e.Available = e.Available.Add(delta)
	e.Total = e.Total.Add(delta)
	l.entries[asset] = e
	return e
}

// Assets lists the assets with a non-zero entry.
func (l *Ledger) Assets() []string {
	out := make([]string, 0, len(l.entries))
	for asset, e := range l.entries {
		if !e.IsZero() {
			out = append(out, asset)
		}
	}
	return out
}

// Snapshot copies the non-empty entries.
func (l *Ledger) Snapshot() map[string]Entry {
	out := make(map[string]Entry, len(l.entries))
	for asset, e := range l.entries {
		if !e.IsZero() {
			out[asset] = e
		}
	}
	return out
}

// Equal compares filtered non-empty entries of both ledgers.
func (l *Ledger) Equal(other *Ledger) bool {
	a, b := l.Snapshot(), other.Snapshot()
	if len(a) != len(b) {
		return false
	}
	for asset, ea := range a {
		eb, ok := b[asset]
		if !ok || !ea.Available.Equal(eb.Available) || !ea.Total.Equal(eb.Total) {
			return false
		}
	}
	return true
}
