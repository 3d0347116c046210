package exchange

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
)

func TestStatusFromOrder(t *testing.T) {
	tests := []struct {
		name       string
		order      apiOrder
		wantState  model.OrderState
		wantFilled int
		wantErr    bool
	}{
		{
			name:      "resting no fills",
			order:     apiOrder{OrderID: "a", Status: "resting", Count: 10, RemainingCount: 10},
			wantState: model.OrderAcknowledged,
		},
		{
			name:       "resting with fills",
			order:      apiOrder{OrderID: "b", Status: "resting", Count: 10, RemainingCount: 4},
			wantState:  model.OrderPartiallyFilled,
			wantFilled: 6,
		},
		{
			name:      "pending no fills",
			order:     apiOrder{OrderID: "c", Status: "pending", Count: 10, RemainingCount: 10},
			wantState: model.OrderAcknowledged,
		},
		{
			name:       "executed",
			order:      apiOrder{OrderID: "d", Status: "executed", Count: 10, RemainingCount: 0},
			wantState:  model.OrderFilled,
			wantFilled: 10,
		},
		{
			name:       "canceled with partial fill",
			order:      apiOrder{OrderID: "e", Status: "canceled", Count: 10, RemainingCount: 7},
			wantState:  model.OrderCanceled,
			wantFilled: 3,
		},
		{
			name:    "unknown status",
			order:   apiOrder{OrderID: "f", Status: "mystery", Count: 10, RemainingCount: 10},
			wantErr: true,
		},
		{
			name:    "remaining exceeds count",
			order:   apiOrder{OrderID: "g", Status: "resting", Count: 10, RemainingCount: 12},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := statusFromOrder(&tt.order)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status.State != tt.wantState {
				t.Errorf("State = %q, want %q", status.State, tt.wantState)
			}
			if status.FilledQuantity != tt.wantFilled {
				t.Errorf("FilledQuantity = %d, want %d", status.FilledQuantity, tt.wantFilled)
			}
		})
	}
}

func TestAvgFillPrice(t *testing.T) {
	t.Run("taker fills use fill cost", func(t *testing.T) {
		o := apiOrder{Side: "yes", YesPrice: 45, TakerFillCount: 4, TakerFillCost: 164}
		// 164 cents over 4 contracts = $0.41
		got := avgFillPrice(&o, 4)
		if !got.Equal(decimal.RequireFromString("0.41")) {
			t.Errorf("avgFillPrice = %s, want 0.41", got)
		}
	})

	t.Run("maker fills settle at limit", func(t *testing.T) {
		o := apiOrder{Side: "yes", YesPrice: 45, TakerFillCount: 0}
		got := avgFillPrice(&o, 6)
		if !got.Equal(decimal.RequireFromString("0.45")) {
			t.Errorf("avgFillPrice = %s, want 0.45", got)
		}
	})

	t.Run("no side uses no price", func(t *testing.T) {
		o := apiOrder{Side: "no", NoPrice: 60}
		got := avgFillPrice(&o, 2)
		if !got.Equal(decimal.RequireFromString("0.60")) {
			t.Errorf("avgFillPrice = %s, want 0.60", got)
		}
	})

	t.Run("zero filled is zero", func(t *testing.T) {
		o := apiOrder{Side: "yes", YesPrice: 45}
		if got := avgFillPrice(&o, 0); !got.IsZero() {
			t.Errorf("avgFillPrice = %s, want 0", got)
		}
	})
}

func TestPositionsFromAPI(t *testing.T) {
	in := []apiPosition{
		{Ticker: "MKT1", Position: 25},
		{Ticker: "MKT2", Position: 0},
		{Ticker: "MKT3", Position: -8},
	}

	got := positionsFromAPI(in)
	want := []model.ExchangePosition{
		{EventID: "MKT1", Side: model.SideYes, Quantity: 25},
		{EventID: "MKT3", Side: model.SideNo, Quantity: 8},
	}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("positions[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
