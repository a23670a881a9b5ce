package debug

import "github.com/bramble-labs/bramble/blackboard"

// WatchCondition selects how a watch evaluates the observed value.
type WatchCondition string

const (
	// WatchChange fires whenever the key's value changes, including the
	// key appearing or disappearing.
	WatchChange WatchCondition = "CHANGE"

	// WatchEquals fires when the value becomes equal to the target.
	WatchEquals WatchCondition = "EQUALS"

	// WatchNotEquals fires when the value becomes different from the target.
	WatchNotEquals WatchCondition = "NOT_EQUALS"

	// WatchGreater fires when the value becomes greater than the target.
	WatchGreater WatchCondition = "GREATER"

	// WatchLess fires when the value becomes less than the target.
	WatchLess WatchCondition = "LESS"

	// WatchGreaterEqual fires when the value becomes >= the target.
	WatchGreaterEqual WatchCondition = "GREATER_EQUAL"

	// WatchLessEqual fires when the value becomes <= the target.
	WatchLessEqual WatchCondition = "LESS_EQUAL"
)

// Watch observes one blackboard key after every tick. Comparison watches
// fire on the false-to-true transition of their condition, so a key that
// stays past the threshold does not fire again until the condition resets.
type Watch struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Condition WatchCondition `json:"condition"`
	Target    any            `json:"target,omitempty"`
	HitCount  int            `json:"hit_count"`
	Enabled   bool           `json:"enabled"`
}

// watchState is the controller's between-tick memory for one watch.
type watchState struct {
	seen      bool
	present   bool
	lastValue any
	condTrue  bool
}

// evaluateWatch updates the watch state against the board and reports
// whether the watch fired. The first evaluation only records a baseline.
func evaluateWatch(w *Watch, st *watchState, board *blackboard.Board) bool {
	var value any
	var present bool
	if board != nil {
		value, present = board.Get(w.Key)
	}

	if w.Condition == WatchChange || w.Condition == "" {
		changed := st.seen && (present != st.present ||
			(present && !blackboard.Equal(value, st.lastValue)))
		st.seen = true
		st.present = present
		st.lastValue = value
		return changed
	}

	holds := present && watchHolds(w.Condition, value, w.Target)
	fired := holds && !st.condTrue
	st.condTrue = holds
	st.seen = true
	st.present = present
	st.lastValue = value
	return fired
}

// watchHolds reports whether the comparison condition is currently true.
func watchHolds(cond WatchCondition, value, target any) bool {
	switch cond {
	case WatchEquals:
		return blackboard.Equal(value, target)
	case WatchNotEquals:
		return !blackboard.Equal(value, target)
	case WatchGreater, WatchLess, WatchGreaterEqual, WatchLessEqual:
		cmp, ok := blackboard.Compare(value, target)
		if !ok {
			return false
		}
		switch cond {
		case WatchGreater:
			return cmp > 0
		case WatchLess:
			return cmp < 0
		case WatchGreaterEqual:
			return cmp >= 0
		default:
			return cmp <= 0
		}
	}
	return false
}
