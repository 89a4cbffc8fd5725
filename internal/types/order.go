package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus describes how much of an order the buyer has paid
type PaymentStatus string

const (
	StatusUnpaid     PaymentStatus = "UNPAID"
	StatusDeposited  PaymentStatus = "DEPOSITED"
	StatusPaidInFull PaymentStatus = "PAID_IN_FULL"
)

// Label returns the localized label shown on receipts and exports
func (s PaymentStatus) Label() string {
	switch s {
	case StatusDeposited:
		return "已付訂金"
	case StatusPaidInFull:
		return "已付款"
	default:
		return "未付款"
	}
}

// Order is a finalized purchase request. Orders are values: the ledger hands out
// copies and never changes an order after it has been appended.
type Order struct {
	ID                string          `json:"order_id"`
	Sequence          int             `json:"sequence"`
	Buyer             string          `json:"buyer"`
	ItemName          string          `json:"item_name"`
	Note              string          `json:"note"`
	ForeignPrice      decimal.Decimal `json:"foreign_price"`
	Rate              decimal.Decimal `json:"rate"`
	ExtraFee          int64           `json:"extra_fee"`
	LocalTotal        int64           `json:"local_total"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	DepositAmount     int64           `json:"deposit_amount"`
	BalanceDue        int64           `json:"balance_due"` // signed, negative when overpaid
	URL               string          `json:"url"`
	CreatedAt         time.Time       `json:"created_at"`
	RunningBuyerTotal int64           `json:"running_buyer_total"`
}

// BuyerSummary aggregates every order of one buyer
type BuyerSummary struct {
	Buyer        string  `json:"buyer"`
	Items        []Order `json:"items"`
	TotalLocal   int64   `json:"total_local"`
	TotalDeposit int64   `json:"total_deposit"`
	TotalBalance int64   `json:"total_balance"`
	FreeShipping bool    `json:"free_shipping"`
}

// Summary holds one BuyerSummary per buyer, in order of each buyer's first order
type Summary struct {
	Buyers []BuyerSummary `json:"buyers"`
}

// Get returns the summary of a single buyer
func (s Summary) Get(buyer string) (BuyerSummary, bool) {
	for _, b := range s.Buyers {
		if b.Buyer == buyer {
			return b, true
		}
	}
	return BuyerSummary{}, false
}

// ExportRow is the fixed-shape tabular form of an order. Field order is the
// spreadsheet column order.
type ExportRow struct {
	Buyer             string
	ItemName          string
	Note              string
	LocalTotal        int64
	PaymentStatus     string
	DepositAmount     int64
	BalanceDue        int64
	ForeignPrice      decimal.Decimal
	Rate              decimal.Decimal
	ExtraFee          int64
	RunningBuyerTotal int64
	URL               string
	CreatedAt         string
}

// ExportTimeLayout is the timestamp format used in exported rows
const ExportTimeLayout = "2006-01-02 15:04"

// NewExportRow flattens an order into its export shape
func NewExportRow(o Order) ExportRow {
	createdAt := ""
	if !o.CreatedAt.IsZero() {
		createdAt = o.CreatedAt.Format(ExportTimeLayout)
	}
	return ExportRow{
		Buyer:             o.Buyer,
		ItemName:          o.ItemName,
		Note:              o.Note,
		LocalTotal:        o.LocalTotal,
		PaymentStatus:     o.PaymentStatus.Label(),
		DepositAmount:     o.DepositAmount,
		BalanceDue:        o.BalanceDue,
		ForeignPrice:      o.ForeignPrice,
		Rate:              o.Rate,
		ExtraFee:          o.ExtraFee,
		RunningBuyerTotal: o.RunningBuyerTotal,
		URL:               o.URL,
		CreatedAt:         createdAt,
	}
}

// Cells returns the row as spreadsheet cell values, always 13 entries
func (r ExportRow) Cells() []interface{} {
	return []interface{}{
		r.Buyer,
		r.ItemName,
		r.Note,
		r.LocalTotal,
		r.PaymentStatus,
		r.DepositAmount,
		r.BalanceDue,
		r.ForeignPrice.InexactFloat64(),
		r.Rate.InexactFloat64(),
		r.ExtraFee,
		r.RunningBuyerTotal,
		r.URL,
		r.CreatedAt,
	}
}
