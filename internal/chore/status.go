package chore

import (
	"time"

	"github.com/dukerupert/pocketmoney/internal/model"
)

// transitions is the chore lifecycle graph. Approved and denied have no
// outgoing edges.
var transitions = map[model.ChoreStatus][]model.ChoreStatus{
	model.ChoreOpen:      {model.ChoreClaimed, model.ChoreSubmitted},
	model.ChoreClaimed:   {model.ChoreSubmitted},
	model.ChoreSubmitted: {model.ChoreApproved, model.ChoreDenied},
}

// CanTransition reports whether a chore may move from one status to another.
func CanTransition(from, to model.ChoreStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type DueState string

const (
	DueNone    DueState = "none"
	DuePending DueState = "pending"
	DueToday   DueState = "due_today"
	DueOverdue DueState = "overdue"
	DueDone    DueState = "done"
)

// ComputeDueState classifies a chore against its due date as of now. Terminal
// chores are done regardless of the date.
func ComputeDueState(c model.Chore, now time.Time) DueState {
	if c.Status.Terminal() {
		return DueDone
	}
	if c.DueAt == nil {
		return DueNone
	}

	today := startOfDay(now)
	due := startOfDay(c.DueAt.In(now.Location()))
	switch {
	case due.Before(today):
		return DueOverdue
	case due.Equal(today):
		return DueToday
	default:
		return DuePending
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
