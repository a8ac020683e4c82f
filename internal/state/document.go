package state

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"TriggerBot/internal/model"
)

// Keys of the bot state document. Anything else found at the top level is carried in
// BotState.Extra.
const (
	keyPositions               = "positions"
	keyWatchReference          = "watch_reference"
	keyLastBuyTime             = "last_buy_time"
	keyLastAlertPrice          = "last_alert_price"
	keyLastBuyOpportunityAlert = "last_buy_opportunity_alert"
	keyLastQuoteBalance        = "last_jpy_balance"
)

var knownKeys = []string{
	keyPositions, keyWatchReference, keyLastBuyTime,
	keyLastAlertPrice, keyLastBuyOpportunityAlert, keyLastQuoteBalance,
}

type positionDoc struct {
	ID    string      `json:"id,omitempty"`
	Side  model.Side  `json:"side"`
	Price json.Number `json:"price"`
	Qty   json.Number `json:"qty"`
	Time  int64       `json:"time"`
}

// decodeState parses a state document. Entries that cannot be decoded (a bad position, a
// non-numeric bookkeeping field) are dropped one by one and reported in skipped; err is only
// returned when the document as a whole is unreadable.
func decodeState(data []byte) (st *model.BotState, skipped []error, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("document is not an object")
	}

	st = model.NewBotState()
	if v, ok := raw[keyPositions]; ok && !isNull(v) {
		var entries []json.RawMessage
		if err := json.Unmarshal(v, &entries); err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", keyPositions, err))
		}
		for i, e := range entries {
			p, err := decodePosition(e)
			if err != nil {
				skipped = append(skipped, fmt.Errorf("%s[%d]: %w", keyPositions, i, err))
				continue
			}
			st.Positions = append(st.Positions, p)
		}
		if len(st.Positions) > model.MaxPositions {
			st.Positions = st.Positions[len(st.Positions)-model.MaxPositions:]
		}
	}

	for key, dst := range map[string]*decimal.NullDecimal{
		keyWatchReference:          &st.WatchReference,
		keyLastAlertPrice:          &st.LastAlertPrice,
		keyLastBuyOpportunityAlert: &st.LastBuyOpportunityAlert,
		keyLastQuoteBalance:        &st.LastQuoteBalance,
	} {
		v, err := decodeNullDecimal(raw, key)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		*dst = v
	}

	if v, ok := raw[keyLastBuyTime]; ok && !isNull(v) {
		if ts, err := decodeTimestamp(v); err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", keyLastBuyTime, err))
		} else {
			st.LastBuyTime = &ts
		}
	}

	for _, k := range knownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		st.Extra = raw
	}
	return st, skipped, nil
}

func decodePosition(data json.RawMessage) (model.Position, error) {
	var pd positionDoc
	if err := json.Unmarshal(data, &pd); err != nil {
		return model.Position{}, err
	}
	return pd.toModel()
}

// decodeTimestamp accepts integer and float unix seconds; older writers stored floats.
func decodeTimestamp(v json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, err
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func encodeState(st *model.BotState) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(knownKeys)+len(st.Extra))
	for k, v := range st.Extra {
		out[k] = v
	}

	docs := make([]positionDoc, 0, len(st.Positions))
	for _, p := range st.Positions {
		docs = append(docs, positionDoc{
			ID:    p.ID,
			Side:  p.Side,
			Price: json.Number(p.Price.String()),
			Qty:   json.Number(p.Qty.String()),
			Time:  p.Time,
		})
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}
	out[keyPositions] = b

	out[keyWatchReference] = encodeNullDecimal(st.WatchReference)
	out[keyLastAlertPrice] = encodeNullDecimal(st.LastAlertPrice)
	out[keyLastBuyOpportunityAlert] = encodeNullDecimal(st.LastBuyOpportunityAlert)
	out[keyLastQuoteBalance] = encodeNullDecimal(st.LastQuoteBalance)
	if st.LastBuyTime != nil {
		out[keyLastBuyTime] = json.RawMessage(fmt.Sprintf("%d", *st.LastBuyTime))
	} else {
		out[keyLastBuyTime] = json.RawMessage("null")
	}
	return out, nil
}

func (pd positionDoc) toModel() (model.Position, error) {
	price, err := decimal.NewFromString(string(pd.Price))
	if err != nil {
		return model.Position{}, fmt.Errorf("price: %w", err)
	}
	qty, err := decimal.NewFromString(string(pd.Qty))
	if err != nil {
		return model.Position{}, fmt.Errorf("qty: %w", err)
	}
	side := pd.Side
	if side != model.SideBuy && side != model.SideSell {
		return model.Position{}, fmt.Errorf("unknown side %q", pd.Side)
	}
	id := pd.ID
	if id == "" {
		id = uuid.NewString()
	}
	return model.Position{ID: id, Side: side, Price: price, Qty: qty, Time: pd.Time}, nil
}

func decodeNullDecimal(raw map[string]json.RawMessage, key string) (decimal.NullDecimal, error) {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return decimal.NullDecimal{}, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", key, err)
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", key, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func encodeNullDecimal(d decimal.NullDecimal) json.RawMessage {
	if !d.Valid {
		return json.RawMessage("null")
	}
	return json.RawMessage(d.Decimal.String())
}

func isNull(v json.RawMessage) bool {
	return string(v) == "null"
}
