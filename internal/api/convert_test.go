package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rickgao/rofex-data/internal/model"
)

func TestParseTransactTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"20260115-14:30:45", time.Date(2026, 1, 15, 14, 30, 45, 0, time.UTC), false},
		{"20260115-14:30:45.250", time.Date(2026, 1, 15, 14, 30, 45, 250e6, time.UTC), false},
		{"20260115-14:30:45.000-0300", time.Date(2026, 1, 15, 17, 30, 45, 0, time.UTC), false},
		{"2026-01-15T14:30:45Z", time.Date(2026, 1, 15, 14, 30, 45, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransactTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTransactTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTransactTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseMaturity(t *testing.T) {
	if got := ParseMaturity(""); got != nil {
		t.Errorf("ParseMaturity(\"\") = %v, want nil", got)
	}
	if got := ParseMaturity("2026-02"); got != nil {
		t.Errorf("ParseMaturity(invalid) = %v, want nil", got)
	}
	got := ParseMaturity("20260227")
	if got == nil || got.Day() != 27 || got.Month() != time.February {
		t.Errorf("ParseMaturity(20260227) = %v", got)
	}
}

func TestIsFilledStatus(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"FILLED", true},
		{"PARTIALLY_FILLED", true},
		{"filled", true},
		{" Partially_Filled ", true},
		{"new", false},
		{"CANCELLED", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsFilledStatus(tt.in); got != tt.want {
			t.Errorf("IsFilledStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAccountRef_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"REM1"`, "REM1"},
		{`{"id": "REM2"}`, "REM2"},
		{`null`, ""},
	}

	for _, tt := range tests {
		var ref AccountRef
		if err := json.Unmarshal([]byte(tt.in), &ref); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
		}
		if ref.ID != tt.want {
			t.Errorf("Unmarshal(%s).ID = %q, want %q", tt.in, ref.ID, tt.want)
		}
	}
}

func TestAPIOrder_ToExecution_OrderReport(t *testing.T) {
	raw := `{
		"orderId": "O9", "execId": "", "account": "REM9",
		"instrumentId": {"symbol": "GGAL"}, "price": "10.25", "orderQty": "5",
		"side": "SELL", "ordStatus": "CANCELED", "execType": "C",
		"transactTime": "20260115-10:00:00", "cumQty": "2", "text": "  user request "
	}`
	var o APIOrder
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	e := o.ToExecution(model.SourceStream)

	if e.Account != "REM9" {
		t.Errorf("Account = %q, want REM9 (bare account field)", e.Account)
	}
	if e.Status != model.StatusCanceled {
		t.Errorf("Status = %q, want CANCELED (ordStatus wins)", e.Status)
	}
	if e.ExecutionType != "C" {
		t.Errorf("ExecutionType = %q, want C (execType wins)", e.ExecutionType)
	}
	if e.CancelReason != "user request" {
		t.Errorf("CancelReason = %q, want %q", e.CancelReason, "user request")
	}
	if e.ExecutionID != "" {
		t.Errorf("ExecutionID = %q, want empty (fallback is the ledger's job)", e.ExecutionID)
	}
	if e.Quantity.String() != "5" || e.FilledQty.String() != "2" {
		t.Errorf("Quantity/FilledQty = %s/%s, want 5/2", e.Quantity, e.FilledQty)
	}
}
