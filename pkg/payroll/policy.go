package payroll

import (
	"fmt"
	"strings"
)

// RoleID identifies a chat role that carries a wage.
type RoleID string

// Aggregation decides how wages of several matching roles combine for one member.
type Aggregation int

const (
	aggregationUnset Aggregation = iota
	// AggregateMax pays the single highest matching wage.
	AggregateMax
	// AggregateSum pays the sum of every matching wage.
	AggregateSum
)

const (
	aggregationMaxText = "max"
	aggregationSumText = "sum"
)

// ParseAggregation accepts "max" or "sum".
func ParseAggregation(raw string) (Aggregation, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case aggregationMaxText:
		return AggregateMax, nil
	case aggregationSumText:
		return AggregateSum, nil
	default:
		return aggregationUnset, fmt.Errorf("%w: aggregation %q", ErrInvalidPolicy, raw)
	}
}

func (aggregation Aggregation) String() string {
	switch aggregation {
	case AggregateMax:
		return aggregationMaxText
	case AggregateSum:
		return aggregationSumText
	default:
		return "unset"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (aggregation Aggregation) MarshalText() ([]byte, error) {
	if err := aggregation.validate(); err != nil {
		return nil, err
	}
	return []byte(aggregation.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (aggregation *Aggregation) UnmarshalText(text []byte) error {
	parsed, err := ParseAggregation(string(text))
	if err != nil {
		return err
	}
	*aggregation = parsed
	return nil
}

func (aggregation Aggregation) validate() error {
	if aggregation != AggregateMax && aggregation != AggregateSum {
		return fmt.Errorf("%w: aggregation must be max or sum", ErrInvalidPolicy)
	}
	return nil
}

func (aggregation Aggregation) combine(current int64, wage int64) int64 {
	if aggregation == AggregateSum {
		return current + wage
	}
	return max(current, wage)
}

// DebitPolicy decides what a rollback does when a receiver already spent part of the payout.
type DebitPolicy int

const (
	// FloorAtZero takes whatever is left, down to a zero balance.
	FloorAtZero DebitPolicy = iota
	// Strict fails the whole rollback with ledger.ErrInsufficientFunds.
	Strict
)

func (policy DebitPolicy) String() string {
	if policy == Strict {
		return "strict"
	}
	return "floor_at_zero"
}
