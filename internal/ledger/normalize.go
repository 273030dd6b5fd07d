package ledger

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rickgao/rofex-data/internal/model"
)

var upper = cases.Upper(language.Und)

var validSides = map[string]bool{
	model.SideBuy:  true,
	model.SideSell: true,
}

var validStatuses = map[string]bool{
	model.StatusNew:             true,
	model.StatusPartiallyFilled: true,
	model.StatusFilled:          true,
	model.StatusCanceled:        true,
	model.StatusRejected:        true,
	model.StatusExpired:         true,
}

// Normalize trims and upper-cases the enumerated fields, fills a missing
// execution id and validates the record. Errors wrap model.ErrValidation.
func Normalize(e model.Execution, logger *slog.Logger) (model.Execution, error) {
	if logger == nil {
		logger = slog.Default()
	}

	e.ExecutionID = strings.TrimSpace(e.ExecutionID)
	e.OrderID = strings.TrimSpace(e.OrderID)
	e.Account = strings.TrimSpace(e.Account)
	e.Symbol = strings.TrimSpace(e.Symbol)
	e.Side = upper.String(strings.TrimSpace(e.Side))
	e.Status = upper.String(strings.TrimSpace(e.Status))
	e.ExecutionType = upper.String(strings.TrimSpace(e.ExecutionType))
	if !e.EventTime.IsZero() {
		e.EventTime = e.EventTime.UTC()
	}

	if err := checkRequired(e); err != nil {
		return e, err
	}

	if e.ExecutionID == "" {
		e.ExecutionID = FallbackID(e)
		logger.Warn("execution without id, using fallback",
			"execution_id", e.ExecutionID,
			"order_id", e.OrderID,
		)
	}

	if err := Validate(e); err != nil {
		return e, err
	}
	return e, nil
}

// FallbackID builds an identity from order id, event time and account.
func FallbackID(e model.Execution) string {
	return fmt.Sprintf("%s_%s_%s", e.OrderID, e.EventTime.UTC().Format(time.RFC3339Nano), e.Account)
}

func checkRequired(e model.Execution) error {
	var missing []string
	if e.OrderID == "" {
		missing = append(missing, "order_id")
	}
	if e.Account == "" {
		missing = append(missing, "account")
	}
	if e.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if e.Side == "" {
		missing = append(missing, "side")
	}
	if e.EventTime.IsZero() {
		missing = append(missing, "event_time")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", model.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks side, status and quantities of a normalized record.
func Validate(e model.Execution) error {
	if !validSides[e.Side] {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", model.ErrValidation, e.Side)
	}
	if !validStatuses[e.Status] {
		return fmt.Errorf("%w: unknown status %q", model.ErrValidation, e.Status)
	}
	if !e.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be > 0, got %s", model.ErrValidation, e.Quantity)
	}
	if e.FilledQty.IsNegative() {
		return fmt.Errorf("%w: filled_qty must be >= 0, got %s", model.ErrValidation, e.FilledQty)
	}
	if e.FilledQty.GreaterThan(e.Quantity) {
		return fmt.Errorf("%w: filled_qty %s exceeds quantity %s", model.ErrValidation, e.FilledQty, e.Quantity)
	}
	return nil
}
