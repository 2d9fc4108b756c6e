package engine

import (
	"errors"
	"fmt"
)

// ErrReasonRequired is returned when a rejection carries no reason.
var ErrReasonRequired = errors.New("reason is required")

// ErrUnitMismatch is returned when a unit dispatches a mission it does not hold.
var ErrUnitMismatch = errors.New("unit does not hold the assignment")

// GuardViolationError reports an operation attempted from a status that does not allow
// it. The mission is left unchanged.
type GuardViolationError struct {
	MissionID string
	Operation string
	From      string
	To        string
}

func (e *GuardViolationError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("guard violation: cannot %s mission %s in status %s (target %s)", e.Operation, e.MissionID, e.From, e.To)
	}
	return fmt.Sprintf("guard violation: cannot %s mission %s in status %s", e.Operation, e.MissionID, e.From)
}

// NoAssetsAvailableError reports that no ready unit covers the requester-to-target
// distance. The mission is still returned in no_assets_available.
type NoAssetsAvailableError struct {
	MissionID  string
	Distance   float64
	Considered int
}

func (e *NoAssetsAvailableError) Error() string {
	return fmt.Sprintf("no assets available for mission %s: none of %d units ready with %.0f m in range",
		e.MissionID, e.Considered, e.Distance)
}

// ForbiddenError indicates the actor lacks authority over the mission's unit.
type ForbiddenError struct {
	ActorID   string
	Operation string
	Reason    string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s may not %s: %s", e.ActorID, e.Operation, e.Reason)
}
