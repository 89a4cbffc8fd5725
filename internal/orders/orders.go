package orders

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/daigou-api/internal/export"
	"github.com/ksred/daigou-api/internal/ledger"
	"github.com/ksred/daigou-api/internal/pricing"
	"github.com/ksred/daigou-api/internal/types"
	"github.com/ksred/daigou-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Config carries the pricing policy of a session
type Config struct {
	MinRate               decimal.Decimal
	MaxRate               decimal.Decimal
	DefaultRate           decimal.Decimal
	FreeShippingThreshold int64
	IdempotencyTTL        time.Duration
	ExportPrefix          string
}

// DefaultConfig returns the built-in policy values
func DefaultConfig() Config {
	return Config{
		MinRate:               pricing.MinRate,
		MaxRate:               pricing.MaxRate,
		DefaultRate:           pricing.DefaultRate,
		FreeShippingThreshold: ledger.DefaultFreeShippingThreshold,
		IdempotencyTTL:        24 * time.Hour,
		ExportPrefix:          export.DefaultPrefix,
	}
}

// Service is one order-entry session. It owns the ledger and the current default
// rate and runs every action to completion before accepting the next one.
type Service struct {
	mu       sync.Mutex
	cfg      Config
	ledger   *ledger.Ledger
	rate     decimal.Decimal
	db       *Database
	sink     *export.FileSink
	recorder *export.Recorder
	now      func() time.Time
}

// NewService starts a session with an empty ledger
func NewService(gormDB *gorm.DB, cfg Config, sink *export.FileSink) (*Service, error) {
	if err := pricing.CheckRateBand(cfg.MinRate, cfg.MaxRate, cfg.DefaultRate); err != nil {
		return nil, err
	}
	return &Service{
		cfg:      cfg,
		ledger:   ledger.New(cfg.FreeShippingThreshold),
		rate:     cfg.DefaultRate,
		db:       NewDatabase(gormDB),
		sink:     sink,
		recorder: export.NewRecorder(gormDB),
		now:      time.Now,
	}, nil
}

// CreateOrder prices the input at the current default rate and appends it to the ledger.
// A repeated idempotency key that has not expired returns the order created the first
// time instead of adding another one, whatever the new input is; the key alone identifies
// the submission. Validation errors leave the ledger untouched.
func (s *Service) CreateOrder(in pricing.Input, idempotencyKey string) (*OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := log.With().
		Str("service", "orders").
		Str("buyer", in.Buyer).
		Logger()

	if idempotencyKey != "" {
		record, err := s.db.GetIdempotencyRecord(idempotencyKey)
		if err != nil {
			logger.Error().Err(err).Msg("failed to read idempotency record")
			return nil, err
		}
		if record != nil && record.ExpiresAt.After(s.now()) {
			if order, ok := s.ledger.Get(record.OrderID); ok {
				logger.Info().Str("order_id", order.ID).Msg("replaying order for idempotency key")
				result := s.resultFor(order)
				result.Replayed = true
				return result, nil
			}
		}
	}

	priced, err := pricing.PriceOrder(in, s.rate)
	if err != nil {
		logger.Debug().Err(err).Msg("order rejected")
		return nil, err
	}

	order := s.ledger.Append(priced)

	logger.Info().
		Str("order_id", order.ID).
		Int64("local_total", order.LocalTotal).
		Int64("running_buyer_total", order.RunningBuyerTotal).
		Str("payment_status", string(order.PaymentStatus)).
		Msg("order added")

	if idempotencyKey != "" {
		if err := s.db.SaveIdempotencyRecord(idempotencyKey, order.ID, s.now().Add(s.cfg.IdempotencyTTL)); err != nil {
			// the order is already in the ledger and cannot be taken back
			logger.Warn().Err(err).Str("order_id", order.ID).Msg("failed to save idempotency record")
		}
	}

	return s.resultFor(order), nil
}

func (s *Service) resultFor(order types.Order) *OrderResult {
	total := s.ledger.BuyerTotal(order.Buyer)
	return &OrderResult{
		Order:        order,
		BuyerTotal:   total,
		FreeShipping: s.ledger.FreeShipping(order.Buyer),
	}
}

// Rate returns the current default rate
func (s *Service) Rate() RateSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return RateSettings{
		Rate: s.rate.String(),
		Min:  s.cfg.MinRate.String(),
		Max:  s.cfg.MaxRate.String(),
		Step: pricing.RateStep.String(),
	}
}

// SetRate changes the default rate used for orders without a custom rate
func (s *Service) SetRate(raw string) (RateSettings, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return RateSettings{}, pricing.ErrInvalidNumber
	}
	if err := pricing.CheckDefaultRate(rate, s.cfg.MinRate, s.cfg.MaxRate); err != nil {
		return RateSettings{}, err
	}

	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()

	log.Info().Str("service", "orders").Str("rate", rate.String()).Msg("default rate changed")
	return s.Rate(), nil
}

// BuyerTotal returns the running total and free-shipping standing of a buyer
func (s *Service) BuyerTotal(buyer string) BuyerStanding {
	s.mu.Lock()
	defer s.mu.Unlock()

	return BuyerStanding{
		Buyer:        buyer,
		Total:        s.ledger.BuyerTotal(buyer),
		Threshold:    s.ledger.Threshold(),
		FreeShipping: s.ledger.FreeShipping(buyer),
	}
}

// Summary groups the session's orders by buyer
func (s *Service) Summary() types.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ledger.Summarize()
}

// Orders lists every order in insertion order
func (s *Service) Orders() []types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ledger.Orders()
}

// GetOrder looks up one order by ID
func (s *Service) GetOrder(orderID string) (types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ledger.Get(orderID)
	if !ok {
		return types.Order{}, types.ErrOrderNotFound
	}
	return order, nil
}

// ExportRows returns the export rows, or export.ErrNoOrders for an empty session
func (s *Service) ExportRows() ([]types.ExportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ledger.Len() == 0 {
		return nil, export.ErrNoOrders
	}
	return s.ledger.ExportRows(), nil
}

// SaveExport writes the current ledger into the export directory and logs the export
func (s *Service) SaveExport() (*export.ExportRecord, error) {
	rows, err := s.ExportRows()
	if err != nil {
		return nil, err
	}

	filename, path, err := s.sink.Save(rows)
	if err != nil {
		return nil, err
	}

	record, err := s.recorder.Record(filename, path, len(rows))
	if err != nil {
		log.Error().Err(err).Str("service", "orders").Str("filename", filename).Msg("failed to record export")
		return nil, err
	}
	return record, nil
}

// Exports lists the exports written in this session
func (s *Service) Exports() ([]export.ExportRecord, error) {
	return s.recorder.List()
}

// GetDB exposes the session database to the cleanup processor
func (s *Service) GetDB() *Database {
	return s.db
}

// GinHandlers contains HTTP handlers for the order-entry endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the session service
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests that add an order.
// The Idempotency-Key header is optional; a repeated key replays the first result.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		status, err := pricing.ParsePaymentStatus(string(req.PaymentStatus))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		in := pricing.Input{
			Buyer:         string(req.Buyer),
			ItemName:      string(req.ItemName),
			ForeignPrice:  string(req.ForeignPrice),
			Note:          string(req.Note),
			CustomRate:    string(req.CustomRate),
			ExtraFee:      string(req.ExtraFee),
			PaymentStatus: status,
			Deposit:       string(req.Deposit),
			URL:           string(req.URL),
		}

		result, err := h.service.CreateOrder(in, c.GetHeader("Idempotency-Key"))
		response.Handle(c, result, err)
	}
}

// ListOrdersHandler handles GET requests for every order of the session
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.Orders())
	}
}

// GetOrderHandler handles GET requests for a single order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.Param("order_id"))
		response.Handle(c, order, err)
	}
}

// BuyerTotalHandler handles GET requests for a buyer's running total
// URL parameter: buyer
func (h *GinHandlers) BuyerTotalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.BuyerTotal(c.Param("buyer")))
	}
}

// SummaryHandler handles GET requests for the per-buyer summary
func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.Summary())
	}
}

// GetRateHandler handles GET requests for the default rate and its allowed range
func (h *GinHandlers) GetRateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.Rate())
	}
}

// SetRateHandler handles PUT requests that change the default rate
func (h *GinHandlers) SetRateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetRateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		settings, err := h.service.SetRate(string(req.Rate))
		response.Handle(c, settings, err)
	}
}

// DownloadExportHandler streams the ledger as a spreadsheet attachment
func (h *GinHandlers) DownloadExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := h.service.ExportRows()
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		var buf bytes.Buffer
		if err := export.WriteXLSX(&buf, rows); err != nil {
			log.Error().Err(err).Str("service", "orders").Msg("failed to encode export")
			response.Handle(c, nil, fmt.Errorf("%w: %v", export.ErrExportFailed, err))
			return
		}

		filename := export.Filename(h.service.cfg.ExportPrefix, time.Now())
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK, export.ContentType, buf.Bytes())
	}
}

// SaveExportHandler writes the ledger into the export directory
func (h *GinHandlers) SaveExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := h.service.SaveExport()
		if errors.Is(err, export.ErrExportFailed) {
			response.InternalError(c, "Export failed, please try again with a new file")
			return
		}
		response.Handle(c, record, err)
	}
}

// ListExportsHandler handles GET requests for the exports written so far
func (h *GinHandlers) ListExportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.service.Exports()
		response.Handle(c, records, err)
	}
}
