package api

import (
	"kanban-board/domain"
	"kanban-board/drag"
)

const (
	taskMaxSize   = 64 * 1024       // 64 KiB
	dragMaxSize   = 256 * 1024      // 256 KiB
	importMaxSize = 8 * 1024 * 1024 // 8 MiB, after gzip decoding
)

// POST /api/tasks/:id/move
type moveRequest struct {
	Status domain.Status `json:"status"`
}

type moveResponse struct {
	Task    domain.Task `json:"task"`
	Changed bool        `json:"changed"`
}

// POST /api/drag/start
type dragStartRequest struct {
	ID string `json:"id"`
}

// POST /api/drag/over
type dragOverRequest struct {
	Status   domain.Status `json:"status"`
	PointerY float64       `json:"pointerY"`
	Siblings []drag.Slot   `json:"siblings"`
}

type dragOverResponse struct {
	Index int `json:"index"`
}

// POST /api/drag/drop
type dropRequest struct {
	Status domain.Status `json:"status"`
}

type dragEndResponse struct {
	Cancelled bool `json:"cancelled"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
