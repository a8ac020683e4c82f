package fund

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"TriggerBot/internal/persist"
)

// document is the on-disk ledger: {"available": <number>, "reserved": <number>}.
type document struct {
	Available json.Number `json:"available"`
	Reserved  json.Number `json:"reserved"`
}

// errNoState is returned by loadState when no ledger file exists yet.
var errNoState = errors.New("no ledger state")

// loadState reads the ledger file.
func loadState(filePath string) (available, reserved decimal.Decimal, err error) {
	var doc document
	if err := persist.ReadJSON(filePath, &doc); err != nil {
		if os.IsNotExist(err) {
			return decimal.Zero, decimal.Zero, errNoState
		}
		return decimal.Zero, decimal.Zero, err
	}
	available, err = parseNumber(doc.Available)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("available: %w", err)
	}
	reserved, err = parseNumber(doc.Reserved)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("reserved: %w", err)
	}
	if available.IsNegative() || reserved.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("negative balance in %s", filePath)
	}
	return available, reserved, nil
}

// saveState writes the ledger file atomically.
func saveState(filePath string, available, reserved decimal.Decimal) (persist.Method, error) {
	return persist.WriteJSON(filePath, document{
		Available: json.Number(available.String()),
		Reserved:  json.Number(reserved.String()),
	})
}

func parseNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(string(n))
}
