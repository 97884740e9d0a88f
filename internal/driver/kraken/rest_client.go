package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lilwiggy/twap-gateway/internal/circuit"
	"github.com/lilwiggy/twap-gateway/internal/ratelimit"
	"github.com/lilwiggy/twap-gateway/pkg/domain"
	"github.com/lilwiggy/twap-gateway/pkg/errors"
	"resty.dev/v3"
)

// RESTClient provides rate-limited, read-only REST access to Kraken's
// public market-data endpoints.
type RESTClient struct {
	client      *resty.Client
	rateLimiter *ratelimit.WeightedLimiter
	breaker     *circuit.Breaker
}

// Config contains configuration for the Kraken REST client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	MaxWeight int
}

// NewRESTClient creates a new Kraken REST client with rate-limit middleware.
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

	rc := &RESTClient{client: client, rateLimiter: rateLimiter, breaker: circuit.NewBreaker("kraken", circuit.DefaultConfig())}
	rc.client.AddRequestMiddleware(func(c *resty.Client, req *resty.Request) error {
		return rc.rateLimiter.Wait(req.Context(), 1)
	})

	return rc, nil
}

// Close releases resources used by the client.
func (rc *RESTClient) Close() { rc.client.Close() }

type ohlcResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// rawOHLCRow is [time, open, high, low, close, vwap, volume, count].
type rawOHLCRow []json.RawMessage

// GetOHLC fetches candlestick data for a wire-format pair and gateway
// interval string ("1m", "1h", "1d", ...).
func (rc *RESTClient) GetOHLC(ctx context.Context, wireSymbol, interval string, limit int) ([]domain.Kline, error) {
	minutes, ok := IntervalMinutes(interval)
	if !ok {
		return nil, errors.NewValidationError("interval", interval, "unsupported interval for kraken")
	}

	result, err := rc.breaker.ExecuteWithResult(func() (any, error) {
		var result ohlcResponse
		resp, err := rc.client.R().
			SetContext(ctx).
			SetQueryParam("pair", wireSymbol).
			SetQueryParam("interval", strconv.Itoa(minutes)).
			SetResult(&result).
			Get(EOHLC)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, errors.NewConnectionError("kraken", EOHLC, fmt.Sprintf("HTTP %d", resp.StatusCode()), false)
		}
		if len(result.Error) > 0 {
			return nil, fmt.Errorf("kraken: %v", result.Error)
		}

		var rows []rawOHLCRow
		for _, raw := range result.Result {
			if err := json.Unmarshal(raw, &rows); err == nil {
				break
			}
		}

		if limit > 0 && len(rows) > limit {
			rows = rows[len(rows)-limit:]
		}

		klines := make([]domain.Kline, 0, len(rows))
		for _, row := range rows {
			k, err := parseOHLCRow(wireSymbol, interval, row)
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

func parseOHLCRow(wireSymbol, interval string, row rawOHLCRow) (domain.Kline, error) {
	if len(row) < 7 {
		return domain.Kline{}, fmt.Errorf("kraken: malformed ohlc row")
	}
	var openTime int64
	var open, high, low, close, volume string
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return domain.Kline{}, fmt.Errorf("parse time: %w", err)
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
	if err := json.Unmarshal(row[6], &volume); err != nil {
		return domain.Kline{}, fmt.Errorf("parse volume: %w", err)
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

	opened := time.Unix(openTime, 0)
	return domain.Kline{
		Symbol:    FromWireSymbol(wireSymbol),
		Interval:  interval,
		OpenTime:  opened,
		CloseTime: opened,
		Open:      openD,
		High:      highD,
		Low:       lowD,
		Close:     closeD,
		Volume:    volD,
	}, nil
}

type assetPairsResponse struct {
	Error  []string                  `json:"error"`
	Result map[string]assetPairEntry `json:"result"`
}

type assetPairEntry struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// GetAssetPairs lists every trading pair Kraken currently lists.
func (rc *RESTClient) GetAssetPairs(ctx context.Context) ([]domain.TradingPair, error) {
	result, err := rc.breaker.ExecuteWithResult(func() (any, error) {
		var result assetPairsResponse
		resp, err := rc.client.R().SetContext(ctx).SetResult(&result).Get(EAssetPairs)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, errors.NewConnectionError("kraken", EAssetPairs, fmt.Sprintf("HTTP %d", resp.StatusCode()), false)
		}
		if len(result.Error) > 0 {
			return nil, fmt.Errorf("kraken: %v", result.Error)
		}

		pairs := make([]domain.TradingPair, 0, len(result.Result))
		for wireKey, entry := range result.Result {
			pairs = append(pairs, domain.TradingPair{
				Symbol: FromWireSymbol(wireKey),
				Base:   entry.Base,
				Quote:  entry.Quote,
			})
		}
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.TradingPair), nil
}
