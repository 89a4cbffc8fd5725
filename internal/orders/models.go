package orders

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/ksred/daigou-api/internal/types"
	"gorm.io/gorm"
)

// IdempotencyRecord maps a client-supplied key to the order it created
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	OrderID        string    `json:"order_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Text accepts a JSON string or a bare JSON number and keeps it as raw text,
// so form fields reach the pricing engine unparsed.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

// CreateOrderRequest is the order entry form
type CreateOrderRequest struct {
	Buyer         Text `json:"buyer"`
	ItemName      Text `json:"item_name"`
	ForeignPrice  Text `json:"foreign_price"`
	Note          Text `json:"note"`
	CustomRate    Text `json:"custom_rate"`
	ExtraFee      Text `json:"extra_fee"`
	PaymentStatus Text `json:"payment_status"`
	Deposit       Text `json:"deposit"`
	URL           Text `json:"url"`
}

// OrderResult is a finalized order together with its buyer's standing
type OrderResult struct {
	Order        types.Order `json:"order"`
	BuyerTotal   int64       `json:"buyer_total"`
	FreeShipping bool        `json:"free_shipping"`
	Replayed     bool        `json:"replayed"`
}

// BuyerStanding is the running total of one buyer
type BuyerStanding struct {
	Buyer        string `json:"buyer"`
	Total        int64  `json:"total"`
	Threshold    int64  `json:"threshold"`
	FreeShipping bool   `json:"free_shipping"`
}

// RateSettings describes the default rate and its allowed range
type RateSettings struct {
	Rate string `json:"rate"`
	Min  string `json:"min"`
	Max  string `json:"max"`
	Step string `json:"step"`
}

// SetRateRequest is the body of a rate change; the rate may be a string or a number
type SetRateRequest struct {
	Rate Text `json:"rate"`
}
