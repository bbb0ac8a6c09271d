package heat

import (
	"errors"
	"fmt"

	"github.com/MannyG3/Kettle/internal/ledger"
)

// Action is the authoritative mutation sent to the vote boundary. The caller
// derives it by comparing the requested direction against the ledger, so the
// boundary itself stays stateless per call.
type Action string

const (
	// ActionUp applies a fresh upvote (+1).
	ActionUp Action = "up"
	// ActionDown applies a fresh downvote (-1).
	ActionDown Action = "down"
	// ActionRemoveUp undoes an active upvote (-1).
	ActionRemoveUp Action = "remove-up"
	// ActionRemoveDown undoes an active downvote (+1).
	ActionRemoveDown Action = "remove-down"
	// ActionSwitchUp flips an active downvote to an upvote in one atomic step (+2).
	ActionSwitchUp Action = "switch-up"
	// ActionSwitchDown flips an active upvote to a downvote in one atomic step (-2).
	ActionSwitchDown Action = "switch-down"
)

// ErrUnknownAction indicates an action outside the vote vocabulary.
var ErrUnknownAction = errors.New("heat: unknown vote action")

// ParseAction validates a wire-level action string.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionUp, ActionDown, ActionRemoveUp, ActionRemoveDown, ActionSwitchUp, ActionSwitchDown:
		return Action(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

// Delta returns the signed score change the action applies.
func (a Action) Delta() int {
	switch a {
	case ActionUp, ActionRemoveDown:
		return 1
	case ActionDown, ActionRemoveUp:
		return -1
	case ActionSwitchUp:
		return 2
	case ActionSwitchDown:
		return -2
	default:
		return 0
	}
}

// Change is the resolved outcome of one vote gesture: the boundary action to
// send, its score delta, and the ledger direction to record afterwards.
type Change struct {
	Action Action
	Delta  int
	Next   ledger.Direction
}

// Resolve maps the participant's current ledger state and requested direction
// onto a single boundary action:
//
//	none + up        -> up          (+1)
//	none + down      -> down        (-1)
//	up   + up        -> remove-up   (-1, toggle off)
//	down + down      -> remove-down (+1, toggle off)
//	up   + down      -> switch-down (-2, compensating)
//	down + up        -> switch-up   (+2, compensating)
//
// The switch cases fold the undo and the new vote into one atomic mutation so
// a crash can never leave the score half-applied.
func Resolve(current ledger.Direction, requested ledger.Direction) (Change, error) {
	switch requested {
	case ledger.DirectionUp:
		switch current {
		case ledger.DirectionUp:
			return Change{Action: ActionRemoveUp, Delta: -1, Next: ledger.DirectionNone}, nil
		case ledger.DirectionDown:
			return Change{Action: ActionSwitchUp, Delta: 2, Next: ledger.DirectionUp}, nil
		default:
			return Change{Action: ActionUp, Delta: 1, Next: ledger.DirectionUp}, nil
		}
	case ledger.DirectionDown:
		switch current {
		case ledger.DirectionDown:
			return Change{Action: ActionRemoveDown, Delta: 1, Next: ledger.DirectionNone}, nil
		case ledger.DirectionUp:
			return Change{Action: ActionSwitchDown, Delta: -2, Next: ledger.DirectionDown}, nil
		default:
			return Change{Action: ActionDown, Delta: -1, Next: ledger.DirectionDown}, nil
		}
	default:
		return Change{}, fmt.Errorf("%w: requested direction %q", ErrUnknownAction, requested)
	}
}
