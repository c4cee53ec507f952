package job

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid job transition")

var allowedTransitions = map[Status]map[Status]struct{}{
	StatusQueued: {
		StatusRunning:   {},
		StatusFailed:    {},
		StatusCancelled: {},
	},
	StatusRunning: {
		StatusPlanning:    {},
		StatusResearching: {},
		StatusFailed:      {},
		StatusCancelled:   {},
	},
	StatusPlanning: {
		StatusResearching: {},
		StatusFailed:      {},
		StatusCancelled:   {},
	},
	StatusResearching: {
		StatusReporting: {},
		StatusFailed:    {},
		StatusCancelled: {},
	},
	StatusReporting: {
		StatusCompleted: {},
		StatusFailed:    {},
		StatusCancelled: {},
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func ValidateStatus(s Status) error {
	if _, ok := allowedTransitions[s]; !ok {
		return fmt.Errorf("invalid job status: %q", s)
	}
	return nil
}

// ValidateTransition checks from -> to against the lifecycle graph.
// StatusStopping is not part of the graph and is rejected on either side.
func ValidateTransition(from, to Status) error {
	if err := ValidateStatus(from); err != nil {
		return err
	}
	if err := ValidateStatus(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
