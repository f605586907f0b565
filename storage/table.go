package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"kanban-board/domain"
)

type entityTable interface {
	ListPartition(ctx context.Context, partition string) ([][]byte, error)
	Upsert(ctx context.Context, entity []byte) error
	Delete(ctx context.Context, partition, row string) error
}

// TableStore keeps one entity per task in an Azure Table partition named
// after the storage key. Display order lives in the Order column.
type TableStore struct {
	table entityTable
	key   string
}

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	Priority     string `json:"Priority"`
	DueDate      string `json:"DueDate"`
	Tags         string `json:"Tags"`
	Status       string `json:"Status"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
	Order        int    `json:"Order"`
}

// NewTableStore connects to the named table.
func NewTableStore(connStr, tableName, key string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTableStore(&azTable{client: svc.NewClient(tableName)}, key), nil
}

func newTableStore(table entityTable, key string) *TableStore {
	if key == "" {
		key = DefaultKey
	}
	return &TableStore{table: table, key: key}
}

// EnsureTable creates the table unless it already exists.
func EnsureTable(ctx context.Context, connStr, tableName string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	if _, err := svc.NewClient(tableName).CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return err
		}
	}
	return nil
}

func (s *TableStore) Load(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.table.ListPartition(ctx, s.key)
	if err != nil {
		return nil, err
	}
	ents := make([]taskEntity, 0, len(rows))
	for _, row := range rows {
		var ent taskEntity
		if err := sonic.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		ents = append(ents, ent)
	}
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Order < ents[j].Order })

	tasks := make([]domain.Task, 0, len(ents))
	for _, ent := range ents {
		t, err := ent.task()
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", ent.RowKey, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Save upserts every task with its position and removes rows of tasks that
// are gone.
func (s *TableStore) Save(ctx context.Context, tasks []domain.Task) error {
	rows, err := s.table.ListPartition(ctx, s.key)
	if err != nil {
		return err
	}
	stale := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		var ent taskEntity
		if err := sonic.Unmarshal(row, &ent); err != nil {
			return err
		}
		stale[ent.RowKey] = struct{}{}
	}

	for i, t := range tasks {
		payload, err := sonic.Marshal(newTaskEntity(s.key, i, t))
		if err != nil {
			return err
		}
		if err := s.table.Upsert(ctx, payload); err != nil {
			return fmt.Errorf("upsert %s: %w", t.ID, err)
		}
		delete(stale, t.ID)
	}
	for id := range stale {
		if err := s.table.Delete(ctx, s.key, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}

func newTaskEntity(partition string, order int, t domain.Task) taskEntity {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, _ := sonic.MarshalString(tags)
	return taskEntity{
		PartitionKey: partition,
		RowKey:       t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Priority:     string(t.Priority),
		DueDate:      t.DueDate,
		Tags:         rawTags,
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Order:        order,
	}
}

func (e taskEntity) task() (domain.Task, error) {
	created, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	updated, err := time.Parse(time.RFC3339Nano, e.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	tags := []string{}
	if e.Tags != "" {
		if err := sonic.UnmarshalString(e.Tags, &tags); err != nil {
			return domain.Task{}, err
		}
	}
	return domain.Task{
		ID:          e.RowKey,
		Title:       e.Title,
		Description: e.Description,
		Priority:    domain.Priority(e.Priority),
		DueDate:     e.DueDate,
		Tags:        tags,
		Status:      domain.Status(e.Status),
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

type azTable struct {
	client *aztables.Client
}

func (a *azTable) ListPartition(ctx context.Context, partition string) ([][]byte, error) {
	filter := "PartitionKey eq '" + partition + "'"
	pager := a.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var rows [][]byte
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		rows = append(rows, resp.Entities...)
	}
	return rows, nil
}

func (a *azTable) Upsert(ctx context.Context, entity []byte) error {
	_, err := a.client.UpsertEntity(ctx, entity, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (a *azTable) Delete(ctx context.Context, partition, row string) error {
	_, err := a.client.DeleteEntity(ctx, partition, row, nil)
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}
