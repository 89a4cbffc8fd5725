package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ksred/daigou-api/internal/types"
	"github.com/shopspring/decimal"
)

// Rate policy. The default rate is picked from [MinRate, MaxRate] in RateStep increments.
var (
	MinRate     = decimal.RequireFromString("0.26")
	MaxRate     = decimal.RequireFromString("0.30")
	DefaultRate = decimal.RequireFromString("0.28")
	RateStep    = decimal.RequireFromString("0.001")
)

// MaxAmount caps every amount of a single order in local currency. With the cap a
// buyer's running total cannot overflow int64 in any realistic session.
const MaxAmount int64 = 1_000_000_000_000

// Numeric entries longer than maxNumberLen or with an exponent beyond maxExponent
// are rejected before any arithmetic runs on them.
const (
	maxNumberLen = 32
	maxExponent  = 18
)

var maxAmount = decimal.NewFromInt(MaxAmount)

const (
	FieldBuyer       = "buyer"
	FieldItemOrPrice = "item_or_price"
	FieldDeposit     = "deposit"
)

var (
	ErrMissingField    = errors.New("missing field")
	ErrInvalidNumber   = errors.New("invalid number format")
	ErrRateOutOfRange  = errors.New("rate out of range")
	ErrUnknownStatus   = errors.New("unknown payment status")
	ErrInvalidRateBand = errors.New("invalid rate band")
)

// MissingFieldError reports a required entry field that was left empty
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s", e.Field)
}

// Is lets errors.Is(err, ErrMissingField) match any MissingFieldError
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Input carries the raw entry fields of one purchase request
type Input struct {
	Buyer         string
	ItemName      string
	ForeignPrice  string
	Note          string
	CustomRate    string
	ExtraFee      string
	PaymentStatus types.PaymentStatus
	Deposit       string
	URL           string
}

// PriceOrder validates the input and computes the monetary breakdown of one order.
// The returned order has no ID, sequence, timestamp or running total yet; those are
// set when it is appended to a ledger.
func PriceOrder(in Input, defaultRate decimal.Decimal) (types.Order, error) {
	buyer := strings.TrimSpace(in.Buyer)
	if buyer == "" {
		return types.Order{}, &MissingFieldError{Field: FieldBuyer}
	}

	itemName := strings.TrimSpace(in.ItemName)
	rawPrice := strings.TrimSpace(in.ForeignPrice)
	if itemName == "" || rawPrice == "" {
		return types.Order{}, &MissingFieldError{Field: FieldItemOrPrice}
	}

	status := in.PaymentStatus
	if status == "" {
		status = types.StatusUnpaid
	}
	if !validStatus(status) {
		return types.Order{}, ErrUnknownStatus
	}

	foreignPrice, err := parsePositiveDecimal(rawPrice)
	if err != nil {
		return types.Order{}, err
	}

	rate := defaultRate
	if raw := strings.TrimSpace(in.CustomRate); raw != "" {
		rate, err = parsePositiveDecimal(raw)
		if err != nil {
			return types.Order{}, err
		}
	}

	var extraFee int64
	if raw := strings.TrimSpace(in.ExtraFee); raw != "" {
		extraFee, err = parseInt(raw)
		if err != nil || extraFee < 0 {
			return types.Order{}, ErrInvalidNumber
		}
	}

	localTotal, err := LocalTotal(foreignPrice, rate, extraFee)
	if err != nil {
		return types.Order{}, err
	}

	var deposit int64
	switch status {
	case types.StatusDeposited:
		raw := strings.TrimSpace(in.Deposit)
		if raw == "" {
			return types.Order{}, &MissingFieldError{Field: FieldDeposit}
		}
		deposit, err = parseInt(raw)
		if err != nil || deposit <= 0 || deposit > MaxAmount {
			return types.Order{}, ErrInvalidNumber
		}
	case types.StatusPaidInFull:
		deposit = localTotal
	}

	return types.Order{
		Buyer:         buyer,
		ItemName:      itemName,
		Note:          strings.TrimSpace(in.Note),
		ForeignPrice:  foreignPrice,
		Rate:          rate,
		ExtraFee:      extraFee,
		LocalTotal:    localTotal,
		PaymentStatus: status,
		DepositAmount: deposit,
		BalanceDue:    localTotal - deposit,
		URL:           strings.TrimSpace(in.URL),
	}, nil
}

// LocalTotal converts a foreign price at the given rate, truncating toward zero,
// and adds the flat extra fee. Totals above MaxAmount return ErrInvalidNumber.
func LocalTotal(foreignPrice, rate decimal.Decimal, extraFee int64) (int64, error) {
	if extraFee < 0 || extraFee > MaxAmount {
		return 0, ErrInvalidNumber
	}
	total := foreignPrice.Mul(rate).Floor().Add(decimal.NewFromInt(extraFee))
	if total.IsNegative() || total.GreaterThan(maxAmount) {
		return 0, ErrInvalidNumber
	}
	return total.IntPart(), nil
}

// CheckDefaultRate reports whether rate lies within [min, max]
func CheckDefaultRate(rate, min, max decimal.Decimal) error {
	if rate.LessThan(min) || rate.GreaterThan(max) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrRateOutOfRange, rate, min, max)
	}
	return nil
}

// CheckRateBand validates a configured rate range and its default
func CheckRateBand(min, max, def decimal.Decimal) error {
	if !min.IsPositive() || max.LessThan(min) {
		return fmt.Errorf("%w: [%s, %s]", ErrInvalidRateBand, min, max)
	}
	return CheckDefaultRate(def, min, max)
}

// ParsePaymentStatus accepts the API values as well as the localized labels.
// An empty value means unpaid.
func ParsePaymentStatus(s string) (types.PaymentStatus, error) {
	switch strings.TrimSpace(s) {
	case "", string(types.StatusUnpaid), types.StatusUnpaid.Label():
		return types.StatusUnpaid, nil
	case string(types.StatusDeposited), types.StatusDeposited.Label():
		return types.StatusDeposited, nil
	case string(types.StatusPaidInFull), types.StatusPaidInFull.Label():
		return types.StatusPaidInFull, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func validStatus(s types.PaymentStatus) bool {
	switch s {
	case types.StatusUnpaid, types.StatusDeposited, types.StatusPaidInFull:
		return true
	}
	return false
}

func parsePositiveDecimal(s string) (decimal.Decimal, error) {
	if len(s) > maxNumberLen {
		return decimal.Zero, ErrInvalidNumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidNumber
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, ErrInvalidNumber
	}
	return d, nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidNumber
	}
	return n, nil
}
