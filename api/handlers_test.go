package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"kanban-board/board"
	"kanban-board/domain"
)

type memoryPersister struct {
	mu      sync.Mutex
	tasks   []domain.Task
	saveErr error
}

func (m *memoryPersister) Load(ctx context.Context) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Task(nil), m.tasks...), nil
}

func (m *memoryPersister) Save(ctx context.Context, tasks []domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.tasks = append([]domain.Task(nil), tasks...)
	return nil
}

func newTestServer(t *testing.T) (*echo.Echo, *board.Service, *memoryPersister) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	p := &memoryPersister{}
	svc := board.NewService(nil, p, nil, logger)
	e := echo.New()
	Register(e, svc, logger)
	return e, svc, p
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestCreateMoveDeleteOverHTTP(t *testing.T) {
	e, _, p := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/tasks", `{"title":"  Write spec ","priority":"high","tagsText":"docs, ,q2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Task
	decode(t, rec, &created)
	if created.Title != "Write spec" || created.Status != domain.StatusTodo || len(created.Tags) != 2 {
		t.Fatalf("unexpected task: %#v", created)
	}

	var view board.View
	decode(t, do(e, http.MethodGet, "/api/board", ""), &view)
	if view.Counts[domain.StatusTodo] != 1 || view.Total != 1 {
		t.Fatalf("unexpected counts: %v", view.Counts)
	}

	rec = do(e, http.MethodPost, "/api/tasks/"+created.ID+"/move", `{"status":"done"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var moved moveResponse
	decode(t, rec, &moved)
	if !moved.Changed || moved.Task.Status != domain.StatusDone {
		t.Fatalf("unexpected move response: %#v", moved)
	}

	if rec = do(e, http.MethodDelete, "/api/tasks/"+created.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	decode(t, do(e, http.MethodGet, "/api/board", ""), &view)
	if view.Total != 0 || len(p.tasks) != 0 {
		t.Fatalf("expected empty board, got %d (persisted %d)", view.Total, len(p.tasks))
	}
}

func TestCreateTaskValidation(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/tasks", `{"title":"   "}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 got %d", rec.Code)
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Field != "title" {
		t.Fatalf("unexpected error response: %#v", resp)
	}

	if rec = do(e, http.MethodPost, "/api/tasks", `{"title":"x","owner":"me"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown fields rejected, got %d", rec.Code)
	}
	if rec = do(e, http.MethodPost, "/api/tasks", `{"title":"x","dueDate":"next week"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected bad due date rejected, got %d", rec.Code)
	}
}

func TestMissingTasksAreIgnored(t *testing.T) {
	e, _, _ := newTestServer(t)

	if rec := do(e, http.MethodGet, "/api/tasks/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	cases := []struct{ method, path, body string }{
		{http.MethodPut, "/api/tasks/nope", `{"title":"x"}`},
		{http.MethodDelete, "/api/tasks/nope", ""},
		{http.MethodPost, "/api/tasks/nope/move", `{"status":"done"}`},
		{http.MethodPost, "/api/drag/start", `{"id":"nope"}`},
	}
	for _, tc := range cases {
		if rec := do(e, tc.method, tc.path, tc.body); rec.Code != http.StatusNoContent {
			t.Fatalf("%s %s: expected status 204 got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestUpdateAndGetTask(t *testing.T) {
	e, svc, _ := newTestServer(t)
	title := "draft"
	task, _ := svc.Create(context.Background(), domain.Fields{Title: &title})

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"description":"more detail","tags":["a"]}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(task.ID)
	logger, _ := test.NewNullLogger()
	if err := updateTask(svc, logger)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var got domain.Task
	decode(t, do(e, http.MethodGet, "/api/tasks/"+task.ID, ""), &got)
	if got.Title != "draft" || got.Description != "more detail" || len(got.Tags) != 1 || !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatalf("unexpected task: %#v", got)
	}
}

func TestDragFlowOverHTTP(t *testing.T) {
	e, svc, _ := newTestServer(t)
	ctx := context.Background()
	a, b := "a", "b"
	ta, _ := svc.Create(ctx, domain.Fields{Title: &a})
	tb, _ := svc.Create(ctx, domain.Fields{Title: &b})
	_, _, _ = svc.Move(ctx, tb.ID, domain.StatusReview)

	if rec := do(e, http.MethodPost, "/api/drag/start", `{"id":"`+ta.ID+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("drag start: %d %s", rec.Code, rec.Body.String())
	}
	rec := do(e, http.MethodPost, "/api/drag/start", `{"id":"`+tb.ID+`"}`)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), `"dragging"`) {
		t.Fatalf("expected 409 with drag state, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/drag/over", `{"status":"review","pointerY":10,"siblings":[{"id":"`+tb.ID+`","top":0,"height":100}]}`)
	var over dragOverResponse
	decode(t, rec, &over)
	if over.Index != 0 {
		t.Fatalf("expected insert before b, got %d", over.Index)
	}

	rec = do(e, http.MethodPost, "/api/drag/drop", `{"status":"review"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"outcome":"dropped"`) || !strings.Contains(rec.Body.String(), `"before":"`+tb.ID+`"`) {
		t.Fatalf("unexpected drop response: %d %s", rec.Code, rec.Body.String())
	}

	var view board.View
	decode(t, do(e, http.MethodGet, "/api/board", ""), &view)
	review := view.Columns[2].Tasks
	if len(review) != 2 || review[0].ID != ta.ID || review[1].ID != tb.ID {
		t.Fatalf("unexpected review column: %#v", review)
	}

	var end dragEndResponse
	decode(t, do(e, http.MethodPost, "/api/drag/end", ""), &end)
	if end.Cancelled {
		t.Fatal("expected drag end after drop to be a no-op")
	}
	if rec = do(e, http.MethodPost, "/api/drag/drop", `{"status":"todo"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for drop while idle, got %d", rec.Code)
	}
}

func TestExportImportOverHTTP(t *testing.T) {
	e, svc, _ := newTestServer(t)
	title := "keep me"
	_, _ = svc.Create(context.Background(), domain.Fields{Title: &title})

	rec := do(e, http.MethodGet, "/api/export", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), board.ExportFileName) {
		t.Fatalf("unexpected export response: %d %v", rec.Code, rec.Header())
	}
	exported := rec.Body.Bytes()

	other, otherSvc, _ := newTestServer(t)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(exported)
	_ = zw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/import", &buf)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec = httptest.NewRecorder()
	other.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rec.Code, rec.Body.String())
	}
	var resp importResponse
	decode(t, rec, &resp)
	if resp.Imported != 1 || otherSvc.View("").Total != 1 {
		t.Fatalf("unexpected import result: %#v", resp)
	}

	rec = do(other, http.MethodPost, "/api/import", `{"not":"a list"}`)
	if rec.Code != http.StatusBadRequest || otherSvc.View("").Total != 1 {
		t.Fatalf("expected 400 and unchanged board, got %d", rec.Code)
	}
}

func TestImportRejectsInvalidGzip(t *testing.T) {
	e, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("plain"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestSaveFailureReturns500(t *testing.T) {
	e, _, p := newTestServer(t)
	p.saveErr = errors.New("disk full")
	if rec := do(e, http.MethodPost, "/api/tasks", `{"title":"x"}`); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestGetBoardLogsMetrics(t *testing.T) {
	logger, hook := test.NewNullLogger()
	svc := board.NewService(nil, &memoryPersister{}, nil, logger)
	title := "find me"
	_, _ = svc.Create(context.Background(), domain.Fields{Title: &title})
	hook.Reset()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/board?q=FIND", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := getBoard(svc, logger)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "board.request.metrics" {
		t.Fatalf("expected metrics entry, got %#v", entry)
	}
	if entry.Level != log.InfoLevel || entry.Data["query_provided"] != true || entry.Data["tasks_returned"] != 1 {
		t.Fatalf("unexpected metrics fields: %#v", entry.Data)
	}
	if entry.Data["status"] != http.StatusOK {
		t.Fatalf("unexpected status field: %v", entry.Data["status"])
	}
}

func TestHealthz(t *testing.T) {
	e, _, _ := newTestServer(t)
	if rec := do(e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}
