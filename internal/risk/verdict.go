package risk

import "github.com/rickgao/kalshi-trader/internal/model"

// Outcome is the result class of evaluating one decision.
type Outcome string

const (
	// OutcomePlace means the decision was sized and capital reserved.
	OutcomePlace Outcome = "place"
	// OutcomeDownsized means cluster headroom reduced the quantity.
	OutcomeDownsized Outcome = "downsized"
	// OutcomeSkip means no order was created.
	OutcomeSkip Outcome = "skip"
)

// Reason explains a skip or downsize. Reasons are outcomes of normal
// operation, not errors.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonBadQuote          Reason = "bad_quote"
	ReasonPendingClose      Reason = "pending_close"
	ReasonPositionOpen      Reason = "position_open"
	ReasonInsufficientEdge  Reason = "insufficient_edge"
	ReasonNoPositiveKelly   Reason = "no_positive_kelly"
	ReasonBankrollExhausted Reason = "bankroll_exhausted"
	ReasonZeroQuantity      Reason = "zero_quantity"
	ReasonClusterLimit      Reason = "cluster_limit"
)

// Verdict records how one decision was handled. Request is non-nil only
// for Place and Downsized outcomes; its capital is already reserved when
// the verdict is returned.
type Verdict struct {
	EventID string
	Side    model.Side
	Outcome Outcome
	Reason  Reason
	Edge    float64
	Request *model.OrderRequest
}

func skip(eventID string, side model.Side, reason Reason, edge float64) Verdict {
	return Verdict{
		EventID: eventID,
		Side:    side,
		Outcome: OutcomeSkip,
		Reason:  reason,
		Edge:    edge,
	}
}
