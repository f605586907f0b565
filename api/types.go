package api

import (
	"context"

	"kanban-board/board"
	"kanban-board/domain"
	"kanban-board/drag"
)

// Board is the board service the handlers drive. *board.Service implements it.
type Board interface {
	View(query string) board.View
	Get(id string) (domain.Task, error)
	Create(ctx context.Context, f domain.Fields) (domain.Task, error)
	Update(ctx context.Context, id string, f domain.Fields) (domain.Task, error)
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, id string, status domain.Status) (domain.Task, bool, error)
	Export() ([]byte, error)
	Import(ctx context.Context, data []byte) (int, error)
	DragStart(id string) error
	DragOver(status domain.Status, pointerY float64, siblings []drag.Slot) (int, error)
	Drop(ctx context.Context, status domain.Status) (drag.Result, error)
	DragEnd() bool
}
