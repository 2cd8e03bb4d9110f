// Package stats defines the relation statistics consumed by the cost formulas and the providers
// that answer them.
package stats

import (
	"context"
	"errors"
	"fmt"
)

// Provider exposes the catalog statistics the manual cost formulas are written in:
// B(rel), T(rel), M() and V(rel, attr).
type Provider interface {
	// BlockCount returns the number of disk blocks occupied by the relation.
	BlockCount(ctx context.Context, relation string) (int64, error)
	// TupleCount returns the number of tuples in the relation.
	TupleCount(ctx context.Context, relation string) (int64, error)
	// BufferSize returns the number of blocks of buffer memory available to the database.
	BufferSize(ctx context.Context) (int64, error)
	// DistinctCount returns the number of distinct values of attribute in relation.
	DistinctCount(ctx context.Context, relation, attribute string) (int64, error)
}

// ErrUnavailable is matched by every UnavailableError.
var ErrUnavailable = errors.New("statistics unavailable")

// UnavailableError reports a statistic that could not be resolved.
type UnavailableError struct {
	Statistic string
	Relation  string
	Attribute string
	Err       error
}

func (e *UnavailableError) Error() string {
	target := e.Relation
	if e.Attribute != "" {
		target = fmt.Sprintf("%s.%s", e.Relation, e.Attribute)
	}
	msg := fmt.Sprintf("stats: %s unavailable", e.Statistic)
	if target != "" {
		msg = fmt.Sprintf("stats: %s unavailable for %s", e.Statistic, target)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.Err}
}

// Statistic names used in UnavailableError and formula descriptions.
const (
	StatBlocks   = "B"
	StatTuples   = "T"
	StatBuffer   = "M"
	StatDistinct = "V"
)

func unavailable(stat, relation, attribute string, err error) error {
	return &UnavailableError{Statistic: stat, Relation: relation, Attribute: attribute, Err: err}
}
