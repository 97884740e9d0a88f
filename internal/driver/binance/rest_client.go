package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lilwiggy/twap-gateway/internal/circuit"
	"github.com/lilwiggy/twap-gateway/internal/ratelimit"
	"github.com/lilwiggy/twap-gateway/pkg/domain"
	"github.com/lilwiggy/twap-gateway/pkg/errors"
	"resty.dev/v3"
)

// RESTClient provides rate-limited, read-only REST access to Binance's
// public market-data endpoints (no authenticated trading/account surface
// is needed by this gateway).
// IMPORTANT: resty v3 requires calling Close() when done.
type RESTClient struct {
	client      *resty.Client
	baseURL     string
	rateLimiter *ratelimit.WeightedLimiter
	breaker     *circuit.Breaker

	closed   bool
	closedMu sync.RWMutex
}

// Config contains configuration for the Binance REST client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	MaxWeight int
}

// NewRESTClient creates a new Binance REST client with rate-limit middleware.
func NewRESTClient(cfg Config) (*RESTClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseRestURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxWeight == 0 {
		cfg.MaxWeight = ratelimit.DefaultMaxWeight
	}

	rateLimiter := ratelimit.NewWeightedLimiter(cfg.MaxWeight)

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("User-Agent", "twap-gateway/1.0")
	client.SetHeader("Accept", "application/json")

	rc := &RESTClient{
		client:      client,
		baseURL:     cfg.BaseURL,
		rateLimiter: rateLimiter,
		breaker:     circuit.NewBreaker("binance", circuit.DefaultConfig()),
	}
	rc.setupMiddleware()

	return rc, nil
}

func (rc *RESTClient) setupMiddleware() {
	rc.client.AddRequestMiddleware(func(c *resty.Client, req *resty.Request) error {
		rc.closedMu.RLock()
		if rc.closed {
			rc.closedMu.RUnlock()
			return fmt.Errorf("binance: client is closed")
		}
		rc.closedMu.RUnlock()

		weight := getEndpointWeight(req.URL)
		if err := rc.rateLimiter.Wait(req.Context(), weight); err != nil {
			return fmt.Errorf("binance: rate limit wait failed: %w", err)
		}
		return nil
	})

	rc.client.AddResponseMiddleware(func(c *resty.Client, resp *resty.Response) error {
		rc.trackWeightFromHeaders(resp.Header())
		return nil
	})
}

func (rc *RESTClient) trackWeightFromHeaders(header http.Header) {
	weightStr := header.Get("X-MBX-USED-WEIGHT-1m")
	if weightStr == "" {
		weightStr = header.Get("X-MBX-USED-WEIGHT-1M")
	}
	if weightStr != "" {
		if weight, err := strconv.Atoi(weightStr); err == nil {
			rc.rateLimiter.UpdateWeight(weight)
		}
	}
}

func getEndpointWeight(endpoint string) int {
	if strings.HasPrefix(endpoint, "http") {
		if idx := strings.Index(endpoint, "/api/"); idx != -1 {
			endpoint = endpoint[idx:]
		}
	}
	return GetEndpointWeight(endpoint)
}

// Close releases resources used by the client.
func (rc *RESTClient) Close() {
	rc.closedMu.Lock()
	rc.closed = true
	rc.closedMu.Unlock()
	rc.client.Close()
}

// Ping tests connectivity to the Binance API.
func (rc *RESTClient) Ping(ctx context.Context) error {
	_, err := rc.client.R().SetContext(ctx).Get(EPing)
	return err
}

// GetServerTime returns the current server time in milliseconds.
func (rc *RESTClient) GetServerTime(ctx context.Context) (int64, error) {
	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	resp, err := rc.client.R().SetContext(ctx).SetResult(&result).Get(ETime)
	if err != nil {
		return 0, err
	}
	if !resp.IsSuccess() {
		return 0, rc.handleErrorResponse(resp)
	}
	return result.ServerTime, nil
}

// ExchangeInfo is the subset of Binance's exchange-info response this
// driver needs to answer RestPairs.
type ExchangeInfo struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one listed trading symbol.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// GetExchangeInfo returns exchange information including listed symbols.
func (rc *RESTClient) GetExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	result, err := rc.breaker.ExecuteWithResult(func() (any, error) {
		var result ExchangeInfo
		resp, err := rc.client.R().SetContext(ctx).SetResult(&result).Get(EExchangeInfo)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, rc.handleErrorResponse(resp)
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ExchangeInfo), nil
}

// rawKline is a single element of Binance's klines array response:
// [openTime, open, high, low, close, volume, closeTime, ...].
type rawKline []json.RawMessage

// GetKlines fetches candlestick data for a symbol and interval.
// API: GET /api/v3/klines
func (rc *RESTClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	result, err := rc.breaker.ExecuteWithResult(func() (any, error) {
		var raw []rawKline
		resp, err := rc.client.R().
			SetContext(ctx).
			SetQueryParam("symbol", symbol).
			SetQueryParam("interval", interval).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&raw).
			Get(EKlines)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, rc.handleErrorResponse(resp)
		}

		klines := make([]domain.Kline, 0, len(raw))
		for _, row := range raw {
			k, err := parseRawKline(symbol, interval, row)
			if err != nil {
				return nil, err
			}
			klines = append(klines, k)
		}
		return klines, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Kline), nil
}

func parseRawKline(symbol, interval string, row rawKline) (domain.Kline, error) {
	if len(row) < 7 {
		return domain.Kline{}, fmt.Errorf("binance: malformed kline row")
	}
	var openTime, closeTime int64
	var open, high, low, close, volume string
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return domain.Kline{}, fmt.Errorf("parse open_time: %w", err)
	}
	if err := json.Unmarshal(row[1], &open); err != nil {
		return domain.Kline{}, fmt.Errorf("parse open: %w", err)
	}
	if err := json.Unmarshal(row[2], &high); err != nil {
		return domain.Kline{}, fmt.Errorf("parse high: %w", err)
	}
	if err := json.Unmarshal(row[3], &low); err != nil {
		return domain.Kline{}, fmt.Errorf("parse low: %w", err)
	}
	if err := json.Unmarshal(row[4], &close); err != nil {
		return domain.Kline{}, fmt.Errorf("parse close: %w", err)
	}
	if err := json.Unmarshal(row[5], &volume); err != nil {
		return domain.Kline{}, fmt.Errorf("parse volume: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeTime); err != nil {
		return domain.Kline{}, fmt.Errorf("parse close_time: %w", err)
	}

	openD, err := domain.NewDecimal(open)
	if err != nil {
		return domain.Kline{}, err
	}
	highD, err := domain.NewDecimal(high)
	if err != nil {
		return domain.Kline{}, err
	}
	lowD, err := domain.NewDecimal(low)
	if err != nil {
		return domain.Kline{}, err
	}
	closeD, err := domain.NewDecimal(close)
	if err != nil {
		return domain.Kline{}, err
	}
	volD, err := domain.NewDecimal(volume)
	if err != nil {
		return domain.Kline{}, err
	}

	return domain.Kline{
		Symbol:    domain.Canonical(symbol),
		Interval:  interval,
		OpenTime:  time.UnixMilli(openTime),
		CloseTime: time.UnixMilli(closeTime),
		Open:      openD,
		High:      highD,
		Low:       lowD,
		Close:     closeD,
		Volume:    volD,
	}, nil
}

// handleErrorResponse converts HTTP error responses to typed errors.
func (rc *RESTClient) handleErrorResponse(resp *resty.Response) error {
	statusCode := resp.StatusCode()

	var bodyBytes []byte
	if resp.Body != nil {
		bodyBytes, _ = io.ReadAll(resp.Body)
	}
	body := string(bodyBytes)

	var binanceErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(bodyBytes, &binanceErr); err == nil && binanceErr.Msg != "" {
		return rc.createBinanceError(statusCode, binanceErr.Code, binanceErr.Msg)
	}

	return errors.NewConnectionError("binance", resp.Request.URL, fmt.Sprintf("HTTP %d: %s", statusCode, body), false)
}

func (rc *RESTClient) createBinanceError(httpStatus, code int, msg string) error {
	if code == -1015 || code == -1016 || httpStatus == http.StatusTooManyRequests {
		return errors.NewRateLimitError("binance", 1*time.Second, 1)
	}
	if code == -1100 || code == -1101 || code == -1102 || code == -1103 {
		return errors.NewValidationError("request", nil, msg)
	}
	return fmt.Errorf("binance: error code %d: %s", code, msg)
}
