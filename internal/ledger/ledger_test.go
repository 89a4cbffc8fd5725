package ledger

import (
	"testing"
	"time"

	"github.com/ksred/daigou-api/internal/pricing"
	"github.com/ksred/daigou-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestLedger() *Ledger {
	return NewWithClock(DefaultFreeShippingThreshold, func() time.Time { return fixedNow })
}

func priced(t *testing.T, in pricing.Input) types.Order {
	t.Helper()
	order, err := pricing.PriceOrder(in, pricing.DefaultRate)
	require.NoError(t, err)
	return order
}

func TestAppendRunningTotal(t *testing.T) {
	l := newTestLedger()

	first := l.Append(priced(t, pricing.Input{Buyer: "A", ItemName: "bag", ForeignPrice: "10000"}))
	assert.Equal(t, int64(2800), first.LocalTotal)
	assert.Equal(t, int64(2800), first.RunningBuyerTotal)
	assert.Equal(t, int64(2800), l.BuyerTotal("A"))
	assert.False(t, l.FreeShipping("A"))
	assert.Equal(t, 1, first.Sequence)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, fixedNow, first.CreatedAt)

	second := l.Append(priced(t, pricing.Input{
		Buyer:         "A",
		ItemName:      "scarf",
		ForeignPrice:  "5000",
		PaymentStatus: types.StatusPaidInFull,
	}))
	assert.Equal(t, int64(1400), second.LocalTotal)
	assert.Equal(t, int64(1400), second.DepositAmount)
	assert.Equal(t, int64(0), second.BalanceDue)
	assert.Equal(t, int64(4200), second.RunningBuyerTotal)
	assert.Equal(t, int64(4200), l.BuyerTotal("A"))
	assert.True(t, l.FreeShipping("A"))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBuyerTotalExactMatch(t *testing.T) {
	l := newTestLedger()
	l.Append(priced(t, pricing.Input{Buyer: "Amy", ItemName: "x", ForeignPrice: "1000"}))
	l.Append(priced(t, pricing.Input{Buyer: "amy", ItemName: "y", ForeignPrice: "2000"}))

	assert.Equal(t, int64(280), l.BuyerTotal("Amy"))
	assert.Equal(t, int64(560), l.BuyerTotal("amy"))
	assert.Equal(t, int64(0), l.BuyerTotal("Bob"))
	assert.False(t, l.FreeShipping("Bob"))
}

func TestRunningTotalPerBuyer(t *testing.T) {
	l := newTestLedger()
	buyers := []string{"A", "B", "A", "C", "B", "A"}
	prices := []string{"1000", "2000", "3000", "4000", "5000", "6000"}

	running := map[string]int64{}
	for i, buyer := range buyers {
		order := l.Append(priced(t, pricing.Input{Buyer: buyer, ItemName: "item", ForeignPrice: prices[i]}))
		assert.GreaterOrEqual(t, order.RunningBuyerTotal, running[buyer])
		running[buyer] += order.LocalTotal
		assert.Equal(t, running[buyer], order.RunningBuyerTotal)
		assert.Equal(t, running[buyer], l.BuyerTotal(buyer))
	}
}

func TestRunningTotalAtMaxAmount(t *testing.T) {
	l := newTestLedger()
	l.Append(priced(t, pricing.Input{Buyer: "A", ItemName: "bag", ForeignPrice: "10000"}))

	_, err := pricing.PriceOrder(pricing.Input{Buyer: "A", ItemName: "yacht", ForeignPrice: "1e20", CustomRate: "0.5"}, pricing.DefaultRate)
	require.ErrorIs(t, err, pricing.ErrInvalidNumber)
	_, err = pricing.PriceOrder(pricing.Input{Buyer: "A", ItemName: "yacht", ForeignPrice: "100", ExtraFee: "9223372036854775807"}, pricing.DefaultRate)
	require.ErrorIs(t, err, pricing.ErrInvalidNumber)
	assert.Equal(t, int64(2800), l.BuyerTotal("A"))

	biggest := l.Append(priced(t, pricing.Input{
		Buyer:        "A",
		ItemName:     "yacht",
		ForeignPrice: "1000000000000",
		CustomRate:   "1",
	}))
	assert.Equal(t, pricing.MaxAmount, biggest.LocalTotal)
	assert.Equal(t, pricing.MaxAmount+2800, biggest.RunningBuyerTotal)
	assert.True(t, l.FreeShipping("A"))
}

func TestFreeShippingThreshold(t *testing.T) {
	l := newTestLedger()

	// 12500 * 0.28 = 3500, exactly on the threshold
	l.Append(priced(t, pricing.Input{Buyer: "edge", ItemName: "x", ForeignPrice: "12500"}))
	l.Append(priced(t, pricing.Input{Buyer: "below", ItemName: "x", ForeignPrice: "12496"}))

	assert.Equal(t, int64(3500), l.BuyerTotal("edge"))
	assert.True(t, l.FreeShipping("edge"))
	assert.Equal(t, int64(3498), l.BuyerTotal("below"))
	assert.False(t, l.FreeShipping("below"))

	custom := New(100)
	custom.Append(priced(t, pricing.Input{Buyer: "edge", ItemName: "x", ForeignPrice: "1000"}))
	assert.True(t, custom.FreeShipping("edge"))
	assert.Equal(t, int64(100), custom.Threshold())
}

func TestSummarize(t *testing.T) {
	l := newTestLedger()
	l.Append(priced(t, pricing.Input{Buyer: "B", ItemName: "b1", ForeignPrice: "1000"}))
	l.Append(priced(t, pricing.Input{Buyer: "A", ItemName: "a1", ForeignPrice: "10000"}))
	l.Append(priced(t, pricing.Input{
		Buyer:         "A",
		ItemName:      "a2",
		ForeignPrice:  "5000",
		PaymentStatus: types.StatusDeposited,
		Deposit:       "500",
	}))
	l.Append(priced(t, pricing.Input{
		Buyer:         "B",
		ItemName:      "b2",
		ForeignPrice:  "2000",
		PaymentStatus: types.StatusPaidInFull,
	}))

	summary := l.Summarize()
	require.Len(t, summary.Buyers, 2)
	assert.Equal(t, "B", summary.Buyers[0].Buyer)
	assert.Equal(t, "A", summary.Buyers[1].Buyer)

	a, ok := summary.Get("A")
	require.True(t, ok)
	require.Len(t, a.Items, 2)
	assert.Equal(t, "a1", a.Items[0].ItemName)
	assert.Equal(t, "a2", a.Items[1].ItemName)
	assert.Equal(t, int64(4200), a.TotalLocal)
	assert.Equal(t, int64(500), a.TotalDeposit)
	assert.Equal(t, int64(3700), a.TotalBalance)
	assert.True(t, a.FreeShipping)

	b, ok := summary.Get("B")
	require.True(t, ok)
	assert.Equal(t, int64(840), b.TotalLocal)
	assert.Equal(t, int64(560), b.TotalDeposit)
	assert.Equal(t, int64(280), b.TotalBalance)
	assert.False(t, b.FreeShipping)

	_, ok = summary.Get("nobody")
	assert.False(t, ok)
}

func TestSummarizeMatchesSequence(t *testing.T) {
	l := newTestLedger()
	for i, buyer := range []string{"A", "B", "A", "B", "C"} {
		status := []types.PaymentStatus{types.StatusUnpaid, types.StatusPaidInFull, types.StatusDeposited}[i%3]
		l.Append(priced(t, pricing.Input{
			Buyer:         buyer,
			ItemName:      "item",
			ForeignPrice:  "7777",
			ExtraFee:      "35",
			PaymentStatus: status,
			Deposit:       "100",
		}))
	}

	for _, b := range l.Summarize().Buyers {
		var local, deposit, balance int64
		for _, o := range l.Orders() {
			if o.Buyer != b.Buyer {
				continue
			}
			local += o.LocalTotal
			deposit += o.DepositAmount
			balance += o.BalanceDue
		}
		assert.Equal(t, local, b.TotalLocal, b.Buyer)
		assert.Equal(t, deposit, b.TotalDeposit, b.Buyer)
		assert.Equal(t, balance, b.TotalBalance, b.Buyer)
		assert.Equal(t, l.BuyerTotal(b.Buyer), b.TotalLocal, b.Buyer)
		assert.Equal(t, l.FreeShipping(b.Buyer), b.FreeShipping, b.Buyer)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Empty(t, newTestLedger().Summarize().Buyers)
}

func TestExportRows(t *testing.T) {
	l := newTestLedger()
	l.Append(priced(t, pricing.Input{Buyer: "A", ItemName: "bag", ForeignPrice: "10000"}))
	l.Append(priced(t, pricing.Input{
		Buyer:         "A",
		ItemName:      "scarf",
		Note:          "red",
		ForeignPrice:  "5000",
		CustomRate:    "0.5",
		ExtraFee:      "100",
		PaymentStatus: types.StatusPaidInFull,
		URL:           "https://example.com/scarf",
	}))

	rows := l.ExportRows()
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "A", first.Buyer)
	assert.Equal(t, "", first.Note)
	assert.Equal(t, "", first.URL)
	assert.Equal(t, "未付款", first.PaymentStatus)
	assert.Equal(t, "2026-03-14 09:26", first.CreatedAt)
	assert.Len(t, first.Cells(), 13)

	second := rows[1]
	assert.Equal(t, int64(2600), second.LocalTotal)
	assert.Equal(t, "已付款", second.PaymentStatus)
	assert.Equal(t, int64(2600), second.DepositAmount)
	assert.Equal(t, int64(5400), second.RunningBuyerTotal)
	assert.Equal(t, "0.5", second.Rate.String())
	assert.Equal(t, int64(100), second.ExtraFee)
	assert.Equal(t, []interface{}{
		"A", "scarf", "red", int64(2600), "已付款", int64(2600), int64(0),
		float64(5000), 0.5, int64(100), int64(5400), "https://example.com/scarf", "2026-03-14 09:26",
	}, second.Cells())
}

func TestOrdersIsCopy(t *testing.T) {
	l := newTestLedger()
	appended := l.Append(priced(t, pricing.Input{Buyer: "A", ItemName: "bag", ForeignPrice: "10000"}))

	orders := l.Orders()
	orders[0].Buyer = "tampered"

	got, ok := l.Get(appended.ID)
	require.True(t, ok)
	assert.Equal(t, "A", got.Buyer)
	assert.Equal(t, 1, l.Len())

	_, ok = l.Get("missing")
	assert.False(t, ok)
}
