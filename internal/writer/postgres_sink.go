package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/rofex-data/internal/model"
)

// TxBeginner is the subset of *pgxpool.Pool used by PostgresSink.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const selectExecutionsSQL = `
	SELECT execution_id, order_id, account, symbol, side,
		quantity::text, price::text, filled_qty::text, last_qty::text, last_px::text,
		status, execution_type, source, event_time,
		previous_filled_qty::text, previous_event_time, superseded, update_count, cancel_reason
	FROM executions
	ORDER BY event_time, execution_id
`

const insertExecutionSQL = `
	INSERT INTO executions (execution_id, order_id, account, symbol, side,
		quantity, price, filled_qty, last_qty, last_px,
		status, execution_type, source, event_time,
		previous_filled_qty, previous_event_time, superseded, update_count, cancel_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
`

// PostgresSink stores the ledger in the executions table. WriteAll deletes
// and re-inserts every row inside one transaction.
type PostgresSink struct {
	db TxBeginner
}

// NewPostgresSink creates a sink on db.
func NewPostgresSink(db TxBeginner) *PostgresSink {
	return &PostgresSink{db: db}
}

// executionRecord mirrors one executions row with NUMERIC columns as text.
type executionRecord struct {
	ExecutionID       string
	OrderID           string
	Account           string
	Symbol            string
	Side              string
	Quantity          string
	Price             string
	FilledQty         string
	LastQty           string
	LastPx            string
	Status            string
	ExecutionType     string
	Source            string
	EventTime         time.Time
	PreviousFilledQty *string
	PreviousEventTime *time.Time
	Superseded        bool
	UpdateCount       int
	CancelReason      string
}

// ReadAll loads every ledger row.
func (s *PostgresSink) ReadAll(ctx context.Context) ([]model.Execution, error) {
	rows, err := s.db.Query(ctx, selectExecutionsSQL)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Execution, error) {
		var r executionRecord
		if err := row.Scan(
			&r.ExecutionID, &r.OrderID, &r.Account, &r.Symbol, &r.Side,
			&r.Quantity, &r.Price, &r.FilledQty, &r.LastQty, &r.LastPx,
			&r.Status, &r.ExecutionType, &r.Source, &r.EventTime,
			&r.PreviousFilledQty, &r.PreviousEventTime, &r.Superseded, &r.UpdateCount, &r.CancelReason,
		); err != nil {
			return model.Execution{}, err
		}
		return r.toExecution()
	})
	if err != nil {
		return nil, fmt.Errorf("scan executions: %w", err)
	}
	return out, nil
}

// WriteAll replaces the table contents with rows.
func (s *PostgresSink) WriteAll(ctx context.Context, rows []model.Execution) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if _, err := tx.Exec(ctx, "DELETE FROM executions"); err != nil {
		return fmt.Errorf("clear executions: %w", err)
	}

	if len(rows) > 0 {
		batch := &pgx.Batch{}
		for _, e := range rows {
			batch.Queue(insertExecutionSQL, executionArgs(e)...)
		}

		results := tx.SendBatch(ctx, batch)
		for i := range rows {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("insert execution %d: %w", i, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func executionArgs(e model.Execution) []any {
	var prevQty *string
	if e.PreviousFilledQty != nil {
		s := e.PreviousFilledQty.String()
		prevQty = &s
	}
	return []any{
		e.ExecutionID, e.OrderID, e.Account, e.Symbol, e.Side,
		e.Quantity.String(), e.Price.String(), e.FilledQty.String(), e.LastQty.String(), e.LastPx.String(),
		e.Status, e.ExecutionType, e.Source, e.EventTime,
		prevQty, e.PreviousEventTime, e.Superseded, e.UpdateCount, e.CancelReason,
	}
}

func (r executionRecord) toExecution() (model.Execution, error) {
	e := model.Execution{
		ExecutionID:       r.ExecutionID,
		OrderID:           r.OrderID,
		Account:           r.Account,
		Symbol:            r.Symbol,
		Side:              r.Side,
		Status:            r.Status,
		ExecutionType:     r.ExecutionType,
		Source:            r.Source,
		EventTime:         r.EventTime.UTC(),
		Superseded:        r.Superseded,
		UpdateCount:       r.UpdateCount,
		CancelReason:      r.CancelReason,
		PreviousEventTime: r.PreviousEventTime,
	}

	fields := []struct {
		name string
		in   string
		out  *decimal.Decimal
	}{
		{"quantity", r.Quantity, &e.Quantity},
		{"price", r.Price, &e.Price},
		{"filled_qty", r.FilledQty, &e.FilledQty},
		{"last_qty", r.LastQty, &e.LastQty},
		{"last_px", r.LastPx, &e.LastPx},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.in)
		if err != nil {
			return model.Execution{}, fmt.Errorf("%s %q: %w", f.name, f.in, err)
		}
		*f.out = d
	}

	if r.PreviousFilledQty != nil {
		d, err := decimal.NewFromString(*r.PreviousFilledQty)
		if err != nil {
			return model.Execution{}, fmt.Errorf("previous_filled_qty %q: %w", *r.PreviousFilledQty, err)
		}
		e.PreviousFilledQty = &d
	}
	if e.PreviousEventTime != nil {
		t := e.PreviousEventTime.UTC()
		e.PreviousEventTime = &t
	}
	return e, nil
}
