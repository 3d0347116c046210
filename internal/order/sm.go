package order

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/kalshi-trader/internal/model"
)

var (
	ErrDuplicateRequest  = errors.New("order request already tracked")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrOverfill          = errors.New("fill exceeds order quantity")
)

// transitions lists the legal next states for each lifecycle state. A
// created order that fails its entry price check moves straight to
// rejected without ever being submitted.
var transitions = map[model.OrderState][]model.OrderState{
	model.OrderCreated:         {model.OrderSubmitted, model.OrderRejected},
	model.OrderSubmitted:       {model.OrderAcknowledged, model.OrderRejected},
	model.OrderAcknowledged:    {model.OrderPartiallyFilled, model.OrderFilled, model.OrderCanceled},
	model.OrderPartiallyFilled: {model.OrderPartiallyFilled, model.OrderFilled, model.OrderCanceled},
}

func canTransition(from, to model.OrderState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// book tracks live orders keyed by request ID. Callers hold the
// manager's lock; the book itself does no locking.
type book struct {
	orders map[uuid.UUID]*model.Order
}

func newBook() *book {
	return &book{orders: make(map[uuid.UUID]*model.Order)}
}

// add registers a new order in the created state.
func (b *book) add(req *model.OrderRequest) (*model.Order, error) {
	if _, ok := b.orders[req.ID]; ok {
		return nil, ErrDuplicateRequest
	}
	o := &model.Order{
		RequestID:  req.ID,
		EventID:    req.EventID,
		Side:       req.Side,
		Direction:  req.Direction,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		State:      model.OrderCreated,
		Reason:     req.Reason,
		CreatedAt:  req.CreatedAt,
		UpdatedAt:  time.Now().UTC(),
	}
	b.orders[req.ID] = o
	return o, nil
}

func (b *book) get(id uuid.UUID) (*model.Order, error) {
	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	return o, nil
}

// transition moves an order to the next state, rejecting illegal moves.
func (b *book) transition(id uuid.UUID, next model.OrderState) (*model.Order, error) {
	o, err := b.get(id)
	if err != nil {
		return nil, err
	}
	if !canTransition(o.State, next) {
		return o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, next)
	}
	o.State = next
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}

// prune drops the oldest finished orders beyond keep so the book stays
// bounded over a long run. Live orders are never dropped.
func (b *book) prune(keep int) {
	var done []*model.Order
	for _, o := range b.orders {
		if o.State.Terminal() {
			done = append(done, o)
		}
	}
	if len(done) <= keep {
		return
	}
	sort.Slice(done, func(i, j int) bool {
		return done[i].UpdatedAt.Before(done[j].UpdatedAt)
	})
	for _, o := range done[:len(done)-keep] {
		delete(b.orders, o.RequestID)
	}
}

// applyFill records the exchange's cumulative filled quantity and
// average price, deriving partially_filled or filled from the remainder.
func (b *book) applyFill(id uuid.UUID, filled int, avgPrice decimal.Decimal) (*model.Order, error) {
	o, err := b.get(id)
	if err != nil {
		return nil, err
	}
	if o.State.Terminal() {
		return o, fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.State)
	}
	if filled > o.Quantity {
		return o, fmt.Errorf("%w: %d of %d", ErrOverfill, filled, o.Quantity)
	}
	if filled < o.FilledQuantity {
		return o, fmt.Errorf("%w: filled quantity shrank from %d to %d", ErrOverfill, o.FilledQuantity, filled)
	}

	next := model.OrderPartiallyFilled
	if filled == o.Quantity {
		next = model.OrderFilled
	}
	if !canTransition(o.State, next) {
		return o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, next)
	}

	o.FilledQuantity = filled
	if !avgPrice.IsZero() {
		o.AvgFillPrice = avgPrice
	}
	o.State = next
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}
