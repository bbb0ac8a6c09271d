// Package ledger records which posts the current anonymous participant has
// voted on. The ledger is device-local convenience state, never authoritative:
// the server-held heat score remains the single source of truth for magnitude.
package ledger

import "context"

// Direction is the participant's recorded vote on a single post.
type Direction string

const (
	// DirectionNone means no active vote is recorded for the post.
	DirectionNone Direction = ""
	// DirectionUp records an active upvote.
	DirectionUp Direction = "up"
	// DirectionDown records an active downvote.
	DirectionDown Direction = "down"
)

// Valid reports whether the direction is one of the known values.
func (d Direction) Valid() bool {
	switch d {
	case DirectionNone, DirectionUp, DirectionDown:
		return true
	default:
		return false
	}
}

// Store persists at most one vote direction per post for one participant.
//
// Implementations are fail-open: a missing or corrupted backing store reads as
// "no votes recorded" rather than blocking voting, since votes are not
// security-sensitive. Concurrent writers are not coordinated; last write wins.
type Store interface {
	// Get returns the recorded direction for a post, DirectionNone when absent.
	Get(ctx context.Context, postID string) (Direction, error)
	// Set records a direction for a post. DirectionNone clears the entry.
	Set(ctx context.Context, postID string, direction Direction) error
	// Snapshot returns all recorded votes keyed by post id.
	Snapshot(ctx context.Context) (map[string]Direction, error)
}
