package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"kanban-board/domain"
)

// DefaultKey is the fixed key the board is stored under.
const DefaultKey = "kanban-tasks"

// backend is the persistence contract shared by every store in this package.
type backend interface {
	Load(ctx context.Context) ([]domain.Task, error)
	Save(ctx context.Context, tasks []domain.Task) error
}

func encodeTasks(tasks []domain.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return sonic.ConfigStd.Marshal(tasks)
}

func decodeTasks(data []byte) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := sonic.ConfigStd.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return normalize(tasks), nil
}

func normalize(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return []domain.Task{}
	}
	for i := range tasks {
		if tasks[i].Tags == nil {
			tasks[i].Tags = []string{}
		}
	}
	return tasks
}

// Bounded limits every Load and Save of the wrapped store to a deadline.
type Bounded struct {
	base    backend
	timeout time.Duration
}

func WithTimeout(base backend, timeout time.Duration) *Bounded {
	return &Bounded{base: base, timeout: timeout}
}

func (b *Bounded) Load(ctx context.Context) ([]domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.base.Load(ctx)
}

func (b *Bounded) Save(ctx context.Context, tasks []domain.Task) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.base.Save(ctx, tasks)
}
