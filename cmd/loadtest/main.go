// Команда loadtest гоняет покупательские сценарии против HTTP API магазина
// и печатает сводку по латентности и ошибкам. Перед запуском воркеров она
// заводит товар от имени администратора, каждый воркер логинится как
// отдельный покупатель.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultPriceMinor = int64(1000)
	purchaseQty       = int32(1)

	codeOK        = "200"
	codeTransport = "transport_error"

	opScenario = "scenario"
	opPurchase = "Purchase"
	opCancel   = "CancelOrder"
)

type scenarioKind string

const (
	scenarioPurchase       scenarioKind = "purchase"
	scenarioPurchaseCancel scenarioKind = "purchase-cancel"
)

func parseScenario(value string) (scenarioKind, error) {
	switch scenarioKind(strings.TrimSpace(value)) {
	case scenarioPurchase:
		return scenarioPurchase, nil
	case scenarioPurchaseCancel:
		return scenarioPurchaseCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        scenarioKind
	cancelRate  int
	productName string
	priceMinor  int64
	stock       int32
	customerTag string
	outputPath  string
}

func parseConfig() (config, error) {
	var (
		cfg           config
		modeValue     string
		timeoutValue  string
		durationValue string
	)

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "HTTP API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(scenarioPurchase), "load mode: purchase | purchase-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for purchase mode (0..100)")
	flag.StringVar(&cfg.productName, "product", "LOAD-WIDGET", "product name used for purchases")
	flag.Int64Var(&cfg.priceMinor, "price-minor", defaultPriceMinor, "product price in minor units when seeding")
	stock := flag.Int("stock", 1_000_000, "product stock when seeding")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	cfg.stock = int32(*stock)

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseScenario(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")

	return cfg, nil
}

func (c config) validate() error {
	switch {
	case c.duration < 0:
		return errors.New("duration must be >= 0")
	case c.duration == 0 && c.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case c.duration > 0 && c.totalSet && c.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case c.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case c.timeout <= 0:
		return errors.New("timeout must be > 0")
	case c.priceMinor <= 0:
		return errors.New("price-minor must be > 0")
	case c.stock <= 0:
		return errors.New("stock must be > 0")
	case c.cancelRate < 0 || c.cancelRate > 100:
		return errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(c.baseURL) == "":
		return errors.New("url is required")
	case strings.TrimSpace(c.productName) == "":
		return errors.New("product is required")
	case strings.TrimSpace(c.customerTag) == "":
		return errors.New("customer-tag is required")
	}
	return nil
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type opReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time           `json:"started_at"`
	DurationSeconds   float64             `json:"duration_seconds"`
	TotalScenarios    int64               `json:"total_scenarios"`
	SuccessScenarios  int64               `json:"success_scenarios"`
	FailedScenarios   int64               `json:"failed_scenarios"`
	ErrorRate         float64             `json:"error_rate"`
	RPS               float64             `json:"rps"`
	ScenarioLatencyMs latencySummary      `json:"scenario_latency_ms"`
	Methods           map[string]opReport `json:"methods"`
}

type opStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

func (s *opStats) note(latency time.Duration, code string, ok bool) {
	s.calls++
	if ok {
		s.success++
	} else {
		s.failed++
	}
	s.codes[code]++
	s.latencies = append(s.latencies, float64(latency.Microseconds())/1000.0)
}

func (s *opStats) summary() opReport {
	codes := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codes[code] = count
	}
	return opReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     codes,
		LatencyMs: summarizeLatency(s.latencies),
	}
}

// runMetrics собирает статистику по операциям со всех воркеров.
type runMetrics struct {
	mu  sync.Mutex
	ops map[string]*opStats
}

func newRunMetrics() *runMetrics {
	return &runMetrics{ops: make(map[string]*opStats)}
}

func (m *runMetrics) observe(op string, latency time.Duration, code string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, found := m.ops[op]
	if !found {
		stats = &opStats{codes: make(map[string]int64)}
		m.ops[op] = stats
	}
	stats.note(latency, code, ok)
}

func (m *runMetrics) snapshot(startedAt time.Time, duration time.Duration) report {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]opReport, len(m.ops)),
	}

	if scenario := m.ops[opScenario]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = summarizeLatency(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range m.ops {
		result.Methods[name] = stats.summary()
	}

	return result
}

// shopClient — минимальный HTTP клиент поверх /v1 API с bearer-токеном.
type shopClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newShopClient(baseURL string, timeout time.Duration) *shopClient {
	return &shopClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *shopClient) call(method, path, idempotencyKey string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}

func (c *shopClient) login(customerID, role string) error {
	status, payload, err := c.call(http.MethodPost, "/v1/sessions", "", map[string]string{
		"customer_id": customerID,
		"role":        role,
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create session: unexpected status %d: %s", status, payload)
	}

	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(payload, &session); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	if session.Token == "" {
		return errors.New("create session returned empty token")
	}
	c.token = session.Token
	return nil
}

// seedProduct заводит товар под нагрузку; повторный запуск с тем же именем
// не считается ошибкой.
func seedProduct(cfg config) error {
	admin := newShopClient(cfg.baseURL, cfg.timeout)
	if err := admin.login("loadtest-admin", "admin"); err != nil {
		return fmt.Errorf("admin login: %w", err)
	}

	status, payload, err := admin.call(http.MethodPost, "/v1/products", "", map[string]any{
		"name":        cfg.productName,
		"price_minor": cfg.priceMinor,
		"stock":       cfg.stock,
	})
	if err != nil {
		return fmt.Errorf("seed product: %w", err)
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return fmt.Errorf("seed product: unexpected status %d: %s", status, payload)
	}
	return nil
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := seedProduct(cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to seed product: %v\n", err)
		os.Exit(1)
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	metrics := newRunMetrics()

	jobs := make(chan int, cfg.concurrency*2)
	failures := runWorkers(cfg, runID, jobs, metrics)

	duration := time.Since(startedAt)
	result := metrics.snapshot(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := saveReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runWorkers поднимает пул воркеров, раздаёт им задания и ждёт окончания.
// Возвращает число сценариев, упавших до записи в метрики (ошибки логина).
func runWorkers(cfg config, runID string, jobs chan int, metrics *runMetrics) int64 {
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			client := newShopClient(cfg.baseURL, cfg.timeout)
			customerID := fmt.Sprintf("%s-%s-w%d", cfg.customerTag, runID, worker)
			if err := client.login(customerID, "customer"); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "worker %d login failed: %v\n", worker, err)
				atomic.AddInt64(&failures, 1)
				for range jobs {
				}
				return
			}

			for id := range jobs {
				if runErr := runScenario(client, cfg, id, runID, metrics); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(workerID)
	}

	produceJobs(jobs, cfg)
	wg.Wait()
	return failures
}

func produceJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	deadline := time.NewTimer(cfg.duration)
	defer deadline.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-deadline.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client *shopClient, cfg config, index int, runID string, metrics *runMetrics) error {
	started := time.Now()
	outcomeCode := codeOK
	outcomeOK := true
	defer func() {
		metrics.observe(opScenario, time.Since(started), outcomeCode, outcomeOK)
	}()

	purchaseKey := fmt.Sprintf("lt-purchase-%s-%d", runID, index)
	orderID, code, err := purchase(client, cfg, purchaseKey, metrics)
	if err != nil {
		outcomeCode, outcomeOK = code, false
		return err
	}

	if cfg.mode == scenarioPurchaseCancel || shouldCancel(index, cfg.cancelRate) {
		if code, err := cancelOrder(client, orderID, metrics); err != nil {
			outcomeCode, outcomeOK = code, false
			return err
		}
	}

	return nil
}

// purchase выполняет POST /v1/purchase и возвращает id созданного заказа.
func purchase(client *shopClient, cfg config, idempotencyKey string, metrics *runMetrics) (string, string, error) {
	started := time.Now()
	status, payload, err := client.call(http.MethodPost, "/v1/purchase", idempotencyKey, map[string]any{
		"product_name": cfg.productName,
		"qty":          purchaseQty,
	})
	metrics.observe(opPurchase, time.Since(started), httpCode(status, err), err == nil && status == http.StatusCreated)

	if err != nil {
		return "", codeTransport, err
	}
	if status != http.StatusCreated {
		return "", strconv.Itoa(status), fmt.Errorf("purchase failed with status %d", status)
	}

	var sale struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(payload, &sale); err != nil || sale.OrderID == "" {
		return "", "500", errors.New("purchase response returned no order id")
	}
	return sale.OrderID, codeOK, nil
}

func cancelOrder(client *shopClient, orderID string, metrics *runMetrics) (string, error) {
	started := time.Now()
	status, _, err := client.call(http.MethodDelete, "/v1/orders/"+orderID, "", nil)
	metrics.observe(opCancel, time.Since(started), httpCode(status, err), err == nil && status == http.StatusOK)

	if err != nil {
		return codeTransport, err
	}
	if status != http.StatusOK {
		return strconv.Itoa(status), fmt.Errorf("cancel failed with status %d", status)
	}
	return codeOK, nil
}

func httpCode(status int, err error) string {
	if err != nil {
		return codeTransport
	}
	return strconv.Itoa(status)
}

func shouldCancel(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func saveReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаёт оператор через CLI-флаг -output.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)

	lat := result.ScenarioLatencyMs
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != opScenario {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		fmt.Printf("%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func summarizeLatency(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: quantile(sorted, 0.50),
		P95: quantile(sorted, 0.95),
		P99: quantile(sorted, 0.99),
	}
}

// quantile возвращает интерполированный квантиль q из отсортированного среза.
func quantile(sorted []float64, q float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := q * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
