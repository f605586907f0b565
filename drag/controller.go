// Package drag tracks a drag-and-drop gesture over the board columns and
// commits the resulting status change and position on drop.
package drag

import (
	"errors"
	"fmt"
	"math"

	"kanban-board/domain"
)

// State of the drag gesture. Dropped and Cancelled are outcomes; the
// controller is Idle again once Drop or End returns.
type State int

const (
	Idle State = iota
	Dragging
	Dropped
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Dropped:
		return "dropped"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Dragging, Dropped, Cancelled} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown drag state %q", text)
}

var (
	// ErrDragActive is returned when a drag starts while another one is running.
	ErrDragActive = errors.New("drag already in progress")
	// ErrNotDragging is returned for gesture events that arrive while idle.
	ErrNotDragging = errors.New("no drag in progress")
)

// Board receives the changes committed by a drop.
type Board interface {
	Move(id string, status domain.Status) (domain.Task, bool, error)
	ReorderBefore(id string, status domain.Status, before string) (bool, error)
}

// Slot is a rendered card inside a column, in column order.
type Slot struct {
	ID     string  `json:"id"`
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// Result describes a finished gesture.
type Result struct {
	TaskID    string        `json:"taskId"`
	Status    domain.Status `json:"status,omitempty"`
	Before    string        `json:"before,omitempty"`
	Moved     bool          `json:"moved"`
	Reordered bool          `json:"reordered"`
	Outcome   State         `json:"outcome"`
}

type target struct {
	status domain.Status
	before string
}

// Controller is the drag state machine. It is not safe for concurrent use.
type Controller struct {
	board  Board
	state  State
	taskID string
	hover  *target
	last   State
}

func NewController(b Board) *Controller {
	return &Controller{board: b, last: Idle}
}

// State reports Idle or Dragging.
func (c *Controller) State() State {
	return c.state
}

// Outcome reports how the last finished gesture ended.
func (c *Controller) Outcome() State {
	return c.last
}

// Dragging returns the id of the task being dragged.
func (c *Controller) Dragging() (string, bool) {
	return c.taskID, c.state == Dragging
}

// Start begins dragging the task. It is ignored while another drag is active.
func (c *Controller) Start(id string) error {
	if c.state == Dragging {
		return ErrDragActive
	}
	if id == "" {
		return &domain.ValidationError{Field: "id", Message: "task id is required"}
	}
	c.state = Dragging
	c.taskID = id
	c.hover = nil
	return nil
}

// Over records the pointer position above a column and returns the index the
// dragged task would be inserted at among the other cards of that column.
// The drop lands in front of the card at that index, so siblings only need
// to list the cards actually rendered.
func (c *Controller) Over(status domain.Status, pointerY float64, siblings []Slot) (int, error) {
	if c.state != Dragging {
		return 0, ErrNotDragging
	}
	if !status.Valid() {
		c.hover = nil
		return 0, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", status)}
	}
	idx := InsertionIndex(siblings, pointerY, c.taskID)
	c.hover = &target{status: status, before: anchor(siblings, idx, c.taskID)}
	return idx, nil
}

// Drop commits the gesture onto the column with the given status. An unknown
// status counts as a drop outside any column and cancels the gesture.
func (c *Controller) Drop(status domain.Status) (Result, error) {
	if c.state != Dragging {
		return Result{Outcome: Idle}, ErrNotDragging
	}
	id := c.taskID
	if !status.Valid() {
		return c.finish(Result{TaskID: id, Outcome: Cancelled}), nil
	}
	var before string
	if c.hover != nil && c.hover.status == status {
		before = c.hover.before
	}
	c.state = Dropped

	_, moved, err := c.board.Move(id, status)
	if err != nil {
		return c.finish(Result{TaskID: id, Outcome: Cancelled}), err
	}
	reordered, err := c.board.ReorderBefore(id, status, before)
	res := Result{TaskID: id, Status: status, Before: before, Moved: moved, Reordered: reordered, Outcome: Dropped}
	if err != nil {
		return c.finish(res), err
	}
	return c.finish(res), nil
}

// End handles the end of a gesture that was not dropped on a column. It
// reports whether an active drag was cancelled.
func (c *Controller) End() bool {
	if c.state != Dragging {
		return false
	}
	c.state = Cancelled
	c.finish(Result{TaskID: c.taskID, Outcome: Cancelled})
	return true
}

func (c *Controller) finish(res Result) Result {
	c.last = res.Outcome
	c.state = Idle
	c.taskID = ""
	c.hover = nil
	return res
}

// InsertionIndex returns the position among siblings, ignoring the dragged
// card, before the nearest sibling whose vertical midpoint lies below
// pointerY. Ties keep the first such sibling. Without one the card goes last.
func InsertionIndex(siblings []Slot, pointerY float64, dragged string) int {
	best, bestOffset := -1, math.Inf(-1)
	n := 0
	for _, s := range siblings {
		if s.ID == dragged {
			continue
		}
		offset := pointerY - s.Top - s.Height/2
		if offset < 0 && offset > bestOffset {
			best, bestOffset = n, offset
		}
		n++
	}
	if best < 0 {
		return n
	}
	return best
}

// anchor returns the id of the idx-th sibling other than dragged, or "" when
// idx is past the last one.
func anchor(siblings []Slot, idx int, dragged string) string {
	n := 0
	for _, s := range siblings {
		if s.ID == dragged {
			continue
		}
		if n == idx {
			return s.ID
		}
		n++
	}
	return ""
}
