package kraken

import (
	"encoding/json"
	"fmt"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

// SubscribeRequest is the control frame that subscribes to a book channel.
// Documentation: https://docs.kraken.com/websockets/#message-subscribe
type SubscribeRequest struct {
	Event        string             `json:"event"`
	Pair         []string           `json:"pair"`
	Subscription SubscriptionConfig `json:"subscription"`
}

// SubscriptionConfig names the channel and depth.
type SubscriptionConfig struct {
	Name  string `json:"name"`
	Depth int    `json:"depth,omitempty"`
}

// NewSubscribeFrame builds a book-channel subscribe request at 10-level depth.
func NewSubscribeFrame(wireSymbol string) ([]byte, error) {
	return json.Marshal(SubscribeRequest{
		Event:        "subscribe",
		Pair:         []string{wireSymbol},
		Subscription: SubscriptionConfig{Name: "book", Depth: 10},
	})
}

// NewUnsubscribeFrame builds the symmetric unsubscribe request.
func NewUnsubscribeFrame(wireSymbol string) ([]byte, error) {
	return json.Marshal(SubscribeRequest{
		Event:        "unsubscribe",
		Pair:         []string{wireSymbol},
		Subscription: SubscriptionConfig{Name: "book"},
	})
}

// bookLevel is a single [price, volume, timestamp] string triple.
type bookLevel [3]string

// ParseBookMessage decodes one of Kraken's book channel snapshot frames: a
// top-level JSON array shaped [channelID, update, channelName, pair] whose
// update object carries full "bs"/"as" snapshot arrays. Kraken's
// incremental "b"/"a" diff frames are not full-book replacements (a level
// can be a partial update or, at zero quantity, a removal) and are not a
// shape this parser can return as a book: they are ignored here, same as
// the connector this gateway's book handling is modelled on. Heartbeats,
// subscription acks (JSON objects), and non-book channel messages also
// return ok=false.
func ParseBookMessage(raw []byte) (symbol string, bids, asks []domain.PriceLevel, ok bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) < 4 {
		return "", nil, nil, false
	}

	var pair string
	if err := json.Unmarshal(arr[len(arr)-1], &pair); err != nil || pair == "" {
		return "", nil, nil, false
	}

	var update struct {
		Bids []bookLevel `json:"bs"`
		Asks []bookLevel `json:"as"`
	}
	if err := json.Unmarshal(arr[1], &update); err != nil {
		return "", nil, nil, false
	}

	if len(update.Bids) == 0 && len(update.Asks) == 0 {
		return "", nil, nil, false
	}

	bids, err := parseBookLevels(update.Bids)
	if err != nil {
		return "", nil, nil, false
	}
	asks, err = parseBookLevels(update.Asks)
	if err != nil {
		return "", nil, nil, false
	}

	return FromWireSymbol(pair), bids, asks, true
}

func parseBookLevels(rows []bookLevel) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		price, err := domain.NewDecimal(row[0])
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		qty, err := domain.NewDecimal(row[1])
		if err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
