package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-board/activity"
	"kanban-board/domain"
	"kanban-board/drag"
)

// Persister loads and saves the whole task collection under a fixed key.
type Persister interface {
	Load(ctx context.Context) ([]domain.Task, error)
	Save(ctx context.Context, tasks []domain.Task) error
}

// Card is a task as the view renders it.
type Card struct {
	domain.Task
	Overdue bool `json:"overdue"`
}

// Column holds the cards of one stage.
type Column struct {
	Status domain.Status `json:"status"`
	Count  int           `json:"count"`
	Tasks  []Card        `json:"tasks"`
}

// View is everything the board needs to render.
type View struct {
	Columns []Column              `json:"columns"`
	Counts  map[domain.Status]int `json:"counts"`
	Total   int                   `json:"total"`
	Query   string                `json:"query,omitempty"`
	Drag    DragState             `json:"drag"`
}

// DragState exposes the drag controller to the view.
type DragState struct {
	State   drag.State `json:"state"`
	TaskID  string     `json:"taskId,omitempty"`
	Outcome drag.State `json:"lastOutcome"`
}

// Service is the single owner of the board. Every method runs to completion
// under one lock, persisting the collection after each mutation.
type Service struct {
	mu      sync.Mutex
	store   *Store
	drag    *drag.Controller
	persist Persister
	feed    activity.Notifier
	logger  *log.Logger
	now     func() time.Time
}

// NewService wires a store to its persistence and activity feed.
func NewService(store *Store, persist Persister, feed activity.Notifier, logger *log.Logger) *Service {
	if store == nil {
		store = NewStore()
	}
	if persist == nil {
		panic("board.NewService: persister is nil")
	}
	if feed == nil {
		feed = activity.Discard
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		store:   store,
		drag:    drag.NewController(store),
		persist: persist,
		feed:    feed,
		logger:  logger,
		now:     time.Now,
	}
}

// Load replaces the in-memory board with the persisted one.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	if err := s.store.Replace(tasks); err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	s.logger.WithField("tasks", len(tasks)).Info("board loaded")
	return nil
}

func (s *Service) save(ctx context.Context) error {
	if err := s.persist.Save(ctx, s.store.List()); err != nil {
		s.logger.WithError(err).Error("failed to save board")
		return fmt.Errorf("save board: %w", err)
	}
	return nil
}

// View returns the board grouped by stage, optionally filtered by query.
func (s *Service) View(query string) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(query)
}

func (s *Service) view(query string) View {
	now := s.now()
	tasks := s.store.Filter(query)
	byStatus := make(map[domain.Status][]Card, len(domain.Statuses))
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], Card{Task: t, Overdue: t.Overdue(now)})
	}
	v := View{
		Columns: make([]Column, 0, len(domain.Statuses)),
		Counts:  s.store.CountByStatus(),
		Total:   s.store.Len(),
		Query:   query,
	}
	for _, st := range domain.Statuses {
		cards := byStatus[st]
		if cards == nil {
			cards = []Card{}
		}
		v.Columns = append(v.Columns, Column{Status: st, Count: len(cards), Tasks: cards})
	}
	id, _ := s.drag.Dragging()
	v.Drag = DragState{State: s.drag.State(), TaskID: id, Outcome: s.drag.Outcome()}
	return v
}

// Get returns a copy of the task for editing.
func (s *Service) Get(id string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

func (s *Service) Create(ctx context.Context, f domain.Fields) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.store.Create(f)
	if err != nil {
		return domain.Task{}, err
	}
	s.logger.WithFields(log.Fields{"task": t.ID, "status": t.Status}).Debug("task created")
	if err := s.save(ctx); err != nil {
		return t, err
	}
	s.feed.Notify(activity.Notice{Type: activity.TaskCreated, TaskID: t.ID, Status: t.Status})
	return t, nil
}

func (s *Service) Update(ctx context.Context, id string, f domain.Fields) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.store.Update(id, f)
	if err != nil {
		return domain.Task{}, err
	}
	s.logger.WithField("task", id).Debug("task updated")
	if err := s.save(ctx); err != nil {
		return t, err
	}
	s.feed.Notify(activity.Notice{Type: activity.TaskUpdated, TaskID: id, Status: t.Status})
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.logger.WithField("task", id).Debug("task deleted")
	if err := s.save(ctx); err != nil {
		return err
	}
	s.feed.Notify(activity.Notice{Type: activity.TaskDeleted, TaskID: id})
	return nil
}

// Move changes the task stage. It reports whether anything changed.
func (s *Service) Move(ctx context.Context, id string, status domain.Status) (domain.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, changed, err := s.store.Move(id, status)
	if err != nil || !changed {
		return t, false, err
	}
	s.logger.WithFields(log.Fields{"task": id, "status": status}).Debug("task moved")
	if err := s.save(ctx); err != nil {
		return t, true, err
	}
	s.feed.Notify(activity.Notice{Type: activity.TaskMoved, TaskID: id, Status: status})
	return t, true, nil
}

// Export serialises the current board.
func (s *Service) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Export(s.store.List())
}

// Import replaces the whole board. Malformed data leaves it unchanged.
func (s *Service) Import(ctx context.Context, data []byte) (int, error) {
	tasks, err := Import(data)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Replace(tasks); err != nil {
		return 0, &domain.ParseError{Err: err}
	}
	s.drag.End()
	s.logger.WithField("tasks", len(tasks)).Info("board imported")
	if err := s.save(ctx); err != nil {
		return len(tasks), err
	}
	s.feed.Notify(activity.Notice{Type: activity.BoardImported, Count: len(tasks)})
	return len(tasks), nil
}

func (s *Service) DragStart(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.store.Get(id); err != nil {
		return err
	}
	return s.drag.Start(id)
}

func (s *Service) DragOver(status domain.Status, pointerY float64, siblings []drag.Slot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drag.Over(status, pointerY, siblings)
}

// Drop finishes the gesture on a column and persists the outcome.
func (s *Service) Drop(ctx context.Context, status domain.Status) (drag.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.drag.Drop(status)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.WithField("task", res.TaskID).Debug("dropped task no longer exists")
		}
		return res, err
	}
	if res.Outcome != drag.Dropped {
		return res, nil
	}
	if !res.Moved && !res.Reordered {
		return res, nil
	}
	if err := s.save(ctx); err != nil {
		return res, err
	}
	if res.Moved {
		s.feed.Notify(activity.Notice{Type: activity.TaskMoved, TaskID: res.TaskID, Status: res.Status})
	}
	if res.Reordered {
		s.feed.Notify(activity.Notice{Type: activity.TaskReordered, TaskID: res.TaskID, Status: res.Status})
	}
	return res, nil
}

// DragEnd cancels an active gesture that was not dropped.
func (s *Service) DragEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drag.End()
}
