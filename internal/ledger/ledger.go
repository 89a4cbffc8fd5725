package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/ksred/daigou-api/internal/types"
)

// DefaultFreeShippingThreshold is the cumulative local total from which a buyer ships free
const DefaultFreeShippingThreshold int64 = 3500

// Ledger is the append-only sequence of finalized orders of one session.
// Per-buyer figures are derived from the sequence on every call.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	orders    []types.Order
	threshold int64
	now       func() time.Time
}

// New creates an empty ledger using the given free-shipping threshold
func New(threshold int64) *Ledger {
	return NewWithClock(threshold, time.Now)
}

// NewWithClock is New with a custom timestamp source
func NewWithClock(threshold int64, now func() time.Time) *Ledger {
	return &Ledger{
		threshold: threshold,
		now:       now,
	}
}

// Threshold returns the free-shipping threshold in local currency units
func (l *Ledger) Threshold() int64 {
	return l.threshold
}

// Append finalizes a priced order and adds it to the end of the ledger.
// Any ID, sequence, timestamp or running total already set on order is replaced.
func (l *Ledger) Append(order types.Order) types.Order {
	order.ID = uuid.New().String()
	order.Sequence = len(l.orders) + 1
	order.CreatedAt = l.now()
	order.RunningBuyerTotal = l.BuyerTotal(order.Buyer) + order.LocalTotal

	l.orders = append(l.orders, order)
	return order
}

// BuyerTotal sums the local totals of every order placed by buyer
func (l *Ledger) BuyerTotal(buyer string) int64 {
	var total int64
	for _, o := range l.orders {
		if o.Buyer == buyer {
			total += o.LocalTotal
		}
	}
	return total
}

// FreeShipping reports whether buyer has reached the free-shipping threshold
func (l *Ledger) FreeShipping(buyer string) bool {
	return l.qualifies(l.BuyerTotal(buyer))
}

// Summarize groups the orders by buyer. Buyers appear in the order of their first
// order and items keep insertion order.
func (l *Ledger) Summarize() types.Summary {
	index := make(map[string]int)
	summary := types.Summary{Buyers: []types.BuyerSummary{}}

	for _, o := range l.orders {
		i, ok := index[o.Buyer]
		if !ok {
			i = len(summary.Buyers)
			index[o.Buyer] = i
			summary.Buyers = append(summary.Buyers, types.BuyerSummary{Buyer: o.Buyer})
		}

		b := &summary.Buyers[i]
		b.Items = append(b.Items, o)
		b.TotalLocal += o.LocalTotal
		b.TotalDeposit += o.DepositAmount
		b.TotalBalance += o.BalanceDue
	}

	for i := range summary.Buyers {
		summary.Buyers[i].FreeShipping = l.qualifies(summary.Buyers[i].TotalLocal)
	}
	return summary
}

// ExportRows returns one fixed-shape row per order, in insertion order
func (l *Ledger) ExportRows() []types.ExportRow {
	rows := make([]types.ExportRow, 0, len(l.orders))
	for _, o := range l.orders {
		rows = append(rows, types.NewExportRow(o))
	}
	return rows
}

// Orders returns a copy of the sequence
func (l *Ledger) Orders() []types.Order {
	out := make([]types.Order, len(l.orders))
	copy(out, l.orders)
	return out
}

// Get looks an order up by ID
func (l *Ledger) Get(id string) (types.Order, bool) {
	for _, o := range l.orders {
		if o.ID == id {
			return o, true
		}
	}
	return types.Order{}, false
}

// Len returns the number of orders
func (l *Ledger) Len() int {
	return len(l.orders)
}

func (l *Ledger) qualifies(total int64) bool {
	return total >= l.threshold
}
