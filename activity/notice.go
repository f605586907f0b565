// Package activity publishes a notice for every change made to the board.
package activity

import (
	"kanban-board/domain"
)

// Notice types.
const (
	TaskCreated   = "task-created"
	TaskUpdated   = "task-updated"
	TaskMoved     = "task-moved"
	TaskReordered = "task-reordered"
	TaskDeleted   = "task-deleted"
	BoardImported = "board-imported"
)

// Notice describes a single board mutation.
type Notice struct {
	ID     string        `json:"id"`
	Type   string        `json:"type"`
	TaskID string        `json:"taskId,omitempty"`
	Status domain.Status `json:"status,omitempty"`
	Count  int           `json:"count,omitempty"`
	Time   int64         `json:"time"`
}

// Notifier accepts notices without blocking the caller for long.
type Notifier interface {
	Notify(n Notice)
}

type discard struct{}

func (discard) Notify(Notice) {}

// Discard drops every notice.
var Discard Notifier = discard{}
