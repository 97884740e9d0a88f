// Package binance implements the Binance exchange driver.
package binance

import (
	"encoding/json"
	"fmt"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

// WSMessage is the combined-stream wrapper: {"stream":"...","data":{...}}.
// Documentation: https://binance-docs.github.io/apidocs/spot/en/#combined-stream-exports
type WSMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// WSPartialDepth is the payload of a <symbol>@depth10@100ms stream: an
// untagged partial-book snapshot, not a delta (no "e" event-type field,
// unlike the full depth-diff stream).
// Documentation: https://binance-docs.github.io/apidocs/spot/en/#partial-book-depth-streams
type WSPartialDepth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// ToLevels parses the raw string price/quantity pairs into domain levels.
func (d *WSPartialDepth) ToLevels() (bids, asks []domain.PriceLevel, err error) {
	bids, err = parseLevels(d.Bids)
	if err != nil {
		return nil, nil, fmt.Errorf("parse bids: %w", err)
	}
	asks, err = parseLevels(d.Asks)
	if err != nil {
		return nil, nil, fmt.Errorf("parse asks: %w", err)
	}
	return bids, asks, nil
}

func parseLevels(raw [][]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, err := domain.NewDecimal(entry[0])
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		qty, err := domain.NewDecimal(entry[1])
		if err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
