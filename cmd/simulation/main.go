package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ksred/daigou-api/internal/database"
	"github.com/ksred/daigou-api/internal/export"
	"github.com/ksred/daigou-api/internal/orders"
	"github.com/ksred/daigou-api/internal/server"
	"github.com/ksred/daigou-api/internal/types"
	"github.com/ksred/daigou-api/pkg/middleware"
)

var (
	buyers = []string{"小美", "阿華", "Kenji", "Lin"}
	items  = []string{"Pocky 禮盒", "合利他命", "Uniqlo 外套", "無印良品 收納盒", "Tamagotchi", "東京香蕉"}
	// weighted towards unpaid, as most orders are paid on delivery
	statuses = []types.PaymentStatus{
		types.StatusUnpaid,
		types.StatusUnpaid,
		types.StatusDeposited,
		types.StatusPaidInFull,
	}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// routeStats tracks latency of one API endpoint
type routeStats struct {
	name      string
	durations []time.Duration
	failures  int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
}

// calculate returns min, max and median latency
func (rs *routeStats) calculate() (min, max, median time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0
	}

	sorted := append([]time.Duration(nil), rs.durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[0], sorted[len(sorted)-1], sorted[len(sorted)/2]
}

// simulationClient talks to the order desk API
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient(baseURL string) *simulationClient {
	return &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"create":  {name: "Create Order"},
			"summary": {name: "Summary"},
			"export":  {name: "Export"},
		},
	}
}

func (sc *simulationClient) do(stat, method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	start := time.Now()
	defer func() {
		sc.stats[stat].addDuration(time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats[stat].failures++
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		sc.stats[stat].failures++
	}
	return resp, nil
}

func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return json.Unmarshal(env.Data, out)
}

// createOrder submits one order form, retrying once with the same idempotency key
func (sc *simulationClient) createOrder(req map[string]string, retry bool) (*orders.OrderResult, error) {
	headers := map[string]string{"Idempotency-Key": uuid.New().String()}

	resp, err := sc.do("create", http.MethodPost, "/api/v1/orders", req, headers)
	if err != nil {
		return nil, err
	}
	var result orders.OrderResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}

	if retry {
		resp, err := sc.do("create", http.MethodPost, "/api/v1/orders", req, headers)
		if err != nil {
			return nil, err
		}
		var replay orders.OrderResult
		if err := decode(resp, &replay); err != nil {
			return nil, err
		}
		if replay.Order.ID != result.Order.ID {
			return nil, fmt.Errorf("retry created a second order %s", replay.Order.ID)
		}
		log.Debug().Str("order_id", replay.Order.ID).Bool("replayed", replay.Replayed).Msg("Retry replayed")
	}

	return &result, nil
}

func (sc *simulationClient) summary() (*types.Summary, error) {
	resp, err := sc.do("summary", http.MethodGet, "/api/v1/summary", nil, nil)
	if err != nil {
		return nil, err
	}
	var summary types.Summary
	if err := decode(resp, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// download fetches the spreadsheet export into dir
func (sc *simulationClient) download(dir string) (string, error) {
	resp, err := sc.do("export", http.MethodGet, "/api/v1/export", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("export failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, export.Filename(export.DefaultPrefix, time.Now()))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}

func randomOrder(rnd *rand.Rand) map[string]string {
	status := statuses[rnd.Intn(len(statuses))]
	req := map[string]string{
		"buyer":          buyers[rnd.Intn(len(buyers))],
		"item_name":      items[rnd.Intn(len(items))],
		"foreign_price":  strconv.Itoa((rnd.Intn(80) + 5) * 100),
		"payment_status": string(status),
	}
	if status == types.StatusDeposited {
		req["deposit"] = strconv.Itoa((rnd.Intn(5) + 1) * 100)
	}
	// heavy items get a special rate and a shipping surcharge
	if rnd.Intn(6) == 0 {
		req["custom_rate"] = "0.32"
		req["extra_fee"] = "150"
		req["note"] = "重物"
	}
	return req
}

func (sc *simulationClient) printPerformanceStats() {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Endpoint", "Calls", "Errors", "Min", "Max", "Median")
	for _, key := range []string{"create", "summary", "export"} {
		stats := sc.stats[key]
		min, max, median := stats.calculate()
		table.Append([]string{
			stats.name,
			strconv.Itoa(len(stats.durations)),
			strconv.Itoa(stats.failures),
			min.Round(time.Microsecond).String(),
			max.Round(time.Microsecond).String(),
			median.Round(time.Microsecond).String(),
		})
	}
	table.Render()
}

func printSummary(summary *types.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("購買人", "件數", "總金額", "已付", "未付", "免運")
	for _, b := range summary.Buyers {
		shipping := "未達免運"
		if b.FreeShipping {
			shipping = "免運費"
		}
		table.Append([]string{
			b.Buyer,
			strconv.Itoa(len(b.Items)),
			strconv.FormatInt(b.TotalLocal, 10),
			strconv.FormatInt(b.TotalDeposit, 10),
			strconv.FormatInt(b.TotalBalance, 10),
			shipping,
		})
	}
	table.Render()
}

// startServer runs an in-process order desk on addr
func startServer(addr string) error {
	db, err := database.NewDatabase("file:simulation?mode=memory&cache=shared")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	service, err := orders.NewService(db, orders.DefaultConfig(), export.NewFileSink(os.TempDir(), export.DefaultPrefix))
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(middleware.Limits{Orders: rate.Inf, Export: rate.Inf, Burst: 1})
	router := server.NewRouter(orders.NewGinHandlers(service), limiter)
	return http.ListenAndServe(addr, router)
}

// main simulates an evening of order entry against a local order desk
func main() {
	var (
		numOrders = flag.Int("orders", 20, "number of orders to enter")
		addr      = flag.String("addr", "127.0.0.1:8081", "listen address of the in-process server")
		outDir    = flag.String("out", "assets", "directory for the downloaded export")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	)
	flag.Parse()

	go func() {
		if err := startServer(*addr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(time.Second)

	simClient := newSimulationClient("http://" + *addr)
	rnd := rand.New(rand.NewSource(*seed))

	log.Info().Int("orders", *numOrders).Int64("seed", *seed).Msg("Starting simulation")

	for i := 0; i < *numOrders; i++ {
		req := randomOrder(rnd)
		result, err := simClient.createOrder(req, rnd.Intn(5) == 0)
		if err != nil {
			log.Error().Err(err).Str("buyer", req["buyer"]).Msg("Failed to create order")
			continue
		}

		log.Info().
			Str("order_id", result.Order.ID).
			Str("buyer", result.Order.Buyer).
			Int64("local_total", result.Order.LocalTotal).
			Int64("buyer_total", result.BuyerTotal).
			Bool("free_shipping", result.FreeShipping).
			Msg("Order created")
	}

	summary, err := simClient.summary()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch summary")
	}
	printSummary(summary)

	path, err := simClient.download(*outDir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download export")
	} else {
		log.Info().Str("path", path).Msg("Export downloaded")
	}

	simClient.printPerformanceStats()
}
