package sanafe

// errors.go defines the error categories the analysis distinguishes, and a
// helper for aggregating errors accumulated across a multi-step phase.
// Fatal categories (input inconsistency, topology violation, numerical
// failure) abort an analysis run; clamping of out-of-range queueing results
// is the only recoverable condition and is counted rather than returned.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInput marks inconsistencies in the trace data or flow table, e.g. an
// empirical distribution whose probabilities do not sum to one, or a flow
// whose source and destination are the same core.
var ErrInput = errors.New("input inconsistency")

// ErrTopology marks a tile or link coordinate that falls outside the fixed
// mesh, or a link index that does not invert cleanly.  These indicate a
// routing-logic defect, not bad data.
var ErrTopology = errors.New("topology violation")

// ErrNumerical marks a queueing computation that produced a non-finite or
// structurally impossible result (e.g. a saturated link whose blocking
// probability reaches 1 while traffic still feeds it).
var ErrNumerical = errors.New("numerical failure")

// InputErrorf builds an ErrInput with a formatted detail message.
func InputErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInput}, args...)...)
}

// TopologyErrorf builds an ErrTopology with a formatted detail message.
func TopologyErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTopology}, args...)...)
}

// NumericalErrorf builds an ErrNumerical with a formatted detail message.
func NumericalErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNumerical}, args...)...)
}

// ReportErrs accepts a list of errors gathered over some phase of the
// analysis and returns a single error joining the non-nil entries, or nil
// if there were none.
func ReportErrs(errs []error) error {
	msgs := []string{}
	var category error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if category == nil {
			category = err
		}
		msgs = append(msgs, err.Error())
	}
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) == 1 {
		return category
	}
	return fmt.Errorf("%w (and %d more): %s", category, len(msgs)-1, strings.Join(msgs[1:], "; "))
}
