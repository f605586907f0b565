package board

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"kanban-board/domain"
)

const maxIDAttempts = 8

// AppendIndex places a task after every other task of its column.
const AppendIndex = -1

// Store owns the task collection. Slice order is display order; tasks of one
// status keep their relative order unless reordered explicitly.
//
// Store is not safe for concurrent use; Service serialises access to it.
type Store struct {
	tasks []domain.Task
	now   func() time.Time
	newID func() string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{now: time.Now, newID: newID}
}

func (s *Store) find(id string) int {
	return slices.IndexFunc(s.tasks, func(t domain.Task) bool { return t.ID == id })
}

// stamp returns the current time, forced strictly after prev.
func (s *Store) stamp(prev time.Time) time.Time {
	ts := s.now().UTC()
	if !ts.After(prev) {
		ts = prev.Add(time.Nanosecond)
	}
	return ts
}

func (s *Store) uniqueID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := s.newID()
		if id != "" && s.find(id) < 0 {
			return id, nil
		}
	}
	return "", errors.New("generate task id: too many collisions")
}

// Create validates the fields and appends a new todo task.
func (s *Store) Create(f domain.Fields) (domain.Task, error) {
	f = f.Normalize()
	if err := f.Check(true); err != nil {
		return domain.Task{}, err
	}
	id, err := s.uniqueID()
	if err != nil {
		return domain.Task{}, err
	}
	now := s.now().UTC()
	t := domain.Task{
		ID:        id,
		Title:     *f.Title,
		Priority:  domain.PriorityMedium,
		Tags:      []string{},
		Status:    domain.StatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyFields(&t, f)
	s.tasks = append(s.tasks, t)
	return t.Clone(), nil
}

// Update merges the provided fields into an existing task.
func (s *Store) Update(id string, f domain.Fields) (domain.Task, error) {
	f = f.Normalize()
	if err := f.Check(false); err != nil {
		return domain.Task{}, err
	}
	i := s.find(id)
	if i < 0 {
		return domain.Task{}, domain.NotFound(id)
	}
	t := &s.tasks[i]
	applyFields(t, f)
	t.UpdatedAt = s.stamp(t.UpdatedAt)
	return t.Clone(), nil
}

func applyFields(t *domain.Task, f domain.Fields) {
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Priority != nil {
		t.Priority = *f.Priority
	}
	if f.DueDate != nil {
		t.DueDate = *f.DueDate
	}
	if f.Tags != nil {
		t.Tags = append([]string{}, f.Tags...)
	}
}

// Delete removes the task with the given id.
func (s *Store) Delete(id string) error {
	i := s.find(id)
	if i < 0 {
		return domain.NotFound(id)
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	return nil
}

// Move sets the task status. Moving to the current status changes nothing.
func (s *Store) Move(id string, status domain.Status) (domain.Task, bool, error) {
	if !status.Valid() {
		return domain.Task{}, false, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", status)}
	}
	i := s.find(id)
	if i < 0 {
		return domain.Task{}, false, domain.NotFound(id)
	}
	t := &s.tasks[i]
	if t.Status == status {
		return t.Clone(), false, nil
	}
	t.Status = status
	t.UpdatedAt = s.stamp(t.UpdatedAt)
	return t.Clone(), true, nil
}

// Reorder positions the task as the index-th task of its status column,
// counting the other tasks of that column. An index past the end or
// AppendIndex puts it last. The task must already have the given status.
func (s *Store) Reorder(id string, status domain.Status, index int) (bool, error) {
	i, rest, err := s.detach(id, status)
	if err != nil {
		return false, err
	}
	pos, seen := -1, 0
	for j := range rest {
		if rest[j].Status != status {
			continue
		}
		if index >= 0 && seen == index {
			pos = j
			break
		}
		seen++
	}
	return s.insertAt(i, rest, pos, status), nil
}

// ReorderBefore positions the task directly in front of the task before
// within the status column. Tasks of the column that sit between them keep
// their place, so the anchor works the same whether or not the caller saw
// the whole column. An empty, unknown or foreign anchor puts the task last.
func (s *Store) ReorderBefore(id string, status domain.Status, before string) (bool, error) {
	i, rest, err := s.detach(id, status)
	if err != nil {
		return false, err
	}
	pos := -1
	if before != "" && before != id {
		pos = slices.IndexFunc(rest, func(t domain.Task) bool {
			return t.ID == before && t.Status == status
		})
	}
	return s.insertAt(i, rest, pos, status), nil
}

// detach returns the index of the task and the collection without it.
func (s *Store) detach(id string, status domain.Status) (int, []domain.Task, error) {
	i := s.find(id)
	if i < 0 {
		return -1, nil, domain.NotFound(id)
	}
	if cur := s.tasks[i].Status; cur != status {
		return -1, nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("task %s is in %s, not %s", id, cur, status)}
	}
	return i, slices.Delete(slices.Clone(s.tasks), i, i+1), nil
}

// insertAt puts task i back at pos of rest. A negative pos means after the
// last task of the status, or where it was when the column is otherwise empty.
func (s *Store) insertAt(i int, rest []domain.Task, pos int, status domain.Status) bool {
	if pos < 0 {
		pos = min(i, len(rest))
		for j := len(rest) - 1; j >= 0; j-- {
			if rest[j].Status == status {
				pos = j + 1
				break
			}
		}
	}
	if pos == i {
		return false
	}
	s.tasks = slices.Insert(rest, pos, s.tasks[i])
	return true
}

// Get returns a copy of the task.
func (s *Store) Get(id string) (domain.Task, error) {
	i := s.find(id)
	if i < 0 {
		return domain.Task{}, domain.NotFound(id)
	}
	return s.tasks[i].Clone(), nil
}

// List returns a copy of every task in display order.
func (s *Store) List() []domain.Task {
	out := make([]domain.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

func (s *Store) Len() int {
	return len(s.tasks)
}

// Grouped returns the tasks of each status in display order.
func (s *Store) Grouped() map[domain.Status][]domain.Task {
	out := make(map[domain.Status][]domain.Task, len(domain.Statuses))
	for _, st := range domain.Statuses {
		out[st] = []domain.Task{}
	}
	for _, t := range s.tasks {
		out[t.Status] = append(out[t.Status], t.Clone())
	}
	return out
}

// CountByStatus maps every stage to the number of tasks in it.
func (s *Store) CountByStatus() map[domain.Status]int {
	out := make(map[domain.Status]int, len(domain.Statuses))
	for _, st := range domain.Statuses {
		out[st] = 0
	}
	for _, t := range s.tasks {
		out[t.Status]++
	}
	return out
}

// Filter returns tasks whose title or description contains query, ignoring case.
func (s *Store) Filter(query string) []domain.Task {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.List()
	}
	out := []domain.Task{}
	for _, t := range s.tasks {
		if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Replace swaps the whole collection after checking the task invariants.
// On error the store is unchanged.
func (s *Store) Replace(tasks []domain.Task) error {
	seen := make(map[string]struct{}, len(tasks))
	next := make([]domain.Task, 0, len(tasks))
	for i, t := range tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("task %d: %w", i, &domain.ValidationError{Field: "id", Message: fmt.Sprintf("duplicate id %q", t.ID)})
		}
		seen[t.ID] = struct{}{}
		t = t.Clone()
		if t.Tags == nil {
			t.Tags = []string{}
		}
		next = append(next, t)
	}
	s.tasks = next
	return nil
}
