// Package order drives order submission to completion: dedupe, retries,
// resting-order tracking, and timeout cleanup.
package order

import (
	"time"

	"perp-trader/pkg/exchanges/common"
)

// PendingStatus tracks a locally registered resting order.
type PendingStatus string

const (
	PendingOpen      PendingStatus = "pending"
	PendingFilled    PendingStatus = "filled"
	PendingCancelled PendingStatus = "cancelled"
)

// PendingOrder is a resting order the manager is responsible for.
type PendingOrder struct {
	OrderID   string        `json:"order_id"`
	ClientID  string        `json:"client_id"`
	Symbol    string        `json:"symbol"`
	Side      common.Side   `json:"side"`
	Size      float64       `json:"size"`
	Price     float64       `json:"price"`
	Status    PendingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`

	// statusFailures counts consecutive unexaminable status checks.
	statusFailures int
}

// Request is one trade the loop wants executed.
type Request struct {
	Symbol     string
	Side       common.Side
	Size       float64 // positive magnitude
	Price      float64 // current mark, also the limit price before snapping
	Type       common.OrderType
	Category   string // open/increase/decrease/reduceRisk/stopOut/profitProtect
	ReduceOnly bool
}

// OutcomeKind classifies an execution result.
type OutcomeKind string

const (
	OutcomeFilled  OutcomeKind = "filled"
	OutcomePending OutcomeKind = "pending"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome is the terminal result of one Execute call.
type Outcome struct {
	Kind     OutcomeKind
	OrderID  string
	AvgPrice float64
	Reason   string
}
