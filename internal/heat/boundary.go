package heat

import (
	"context"
	"fmt"

	"github.com/MannyG3/Kettle/internal/posts"
)

// StoreBoundary adapts the posts service to the vote Boundary contract, mapping
// each action onto a single atomic heat mutation.
type StoreBoundary struct {
	Service *posts.Service
}

// ApplyAction applies the action's mutation and returns the new authoritative score.
func (b StoreBoundary) ApplyAction(ctx context.Context, postID string, action Action) (int, error) {
	id, err := posts.NewPostID(postID)
	if err != nil {
		return 0, err
	}
	switch action {
	case ActionUp, ActionRemoveDown:
		return b.Service.IncrementHeat(ctx, id)
	case ActionDown, ActionRemoveUp:
		return b.Service.DecrementHeat(ctx, id)
	case ActionSwitchUp:
		return b.Service.SwitchHeat(ctx, id, 2)
	case ActionSwitchDown:
		return b.Service.SwitchHeat(ctx, id, -2)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
