package api

import (
	"context"
	"fmt"

	"github.com/rickgao/rofex-data/internal/model"
)

// GetDetailedInstruments fetches the full instrument universe.
func (c *Client) GetDetailedInstruments(ctx context.Context) ([]APIInstrument, error) {
	var resp InstrumentsResponse
	if err := c.get(ctx, "/rest/instruments/details", nil, &resp); err != nil {
		return nil, fmt.Errorf("get instruments: %w", err)
	}
	return resp.Instruments, nil
}

// FetchInstruments returns the instrument universe as model types, skipping
// entries without a symbol.
func (c *Client) FetchInstruments(ctx context.Context) ([]model.Instrument, error) {
	raw, err := c.GetDetailedInstruments(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Instrument, 0, len(raw))
	for i := range raw {
		inst := raw[i].ToModel()
		if inst.Symbol == "" {
			continue
		}
		out = append(out, inst)
	}

	c.logger.Debug("fetched instruments", "count", len(out), "skipped", len(raw)-len(out))
	return out, nil
}
