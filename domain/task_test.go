package domain

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func strPtr(s string) *string { return &s }

func TestTaskMarshalUsesBoardFieldNames(t *testing.T) {
	task := Task{ID: "t1", Title: "Title", Priority: PriorityHigh, Status: StatusInProgress, Tags: []string{}}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	for _, field := range []string{`"dueDate":""`, `"status":"in-progress"`, `"tags":[]`, `"createdAt"`, `"updatedAt"`} {
		if !strings.Contains(string(payload), field) {
			t.Fatalf("expected %s in %s", field, payload)
		}
	}
}

func TestTaskCloneCopiesTags(t *testing.T) {
	orig := Task{ID: "t1", Tags: []string{"a", "b"}}
	cp := orig.Clone()
	cp.Tags[0] = "changed"
	if orig.Tags[0] != "a" {
		t.Fatalf("clone shares tags with original: %#v", orig.Tags)
	}
}

func TestTaskOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		task Task
		want bool
	}{
		{"no due date", Task{Status: StatusTodo}, false},
		{"yesterday", Task{Status: StatusTodo, DueDate: "2026-03-09"}, true},
		{"today", Task{Status: StatusReview, DueDate: "2026-03-10"}, false},
		{"done", Task{Status: StatusDone, DueDate: "2026-01-01"}, false},
		{"garbage", Task{Status: StatusTodo, DueDate: "soon"}, false},
	}
	for _, tc := range cases {
		if got := tc.task.Overdue(now); got != tc.want {
			t.Fatalf("%s: expected overdue=%v got %v", tc.name, tc.want, got)
		}
	}
}

func TestTaskValidate(t *testing.T) {
	now := time.Now().UTC()
	valid := Task{ID: "t1", Title: "x", Priority: PriorityLow, Status: StatusTodo, CreatedAt: now, UpdatedAt: now}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := valid
	bad.Status = "archived"
	err := bad.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation match, got %v", err)
	}

	bad = valid
	bad.UpdatedAt = now.Add(-time.Second)
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error when updatedAt precedes createdAt")
	}
}

func TestFieldsNormalize(t *testing.T) {
	f := Fields{
		Title:       strPtr("  Write spec "),
		Description: strPtr(" body\n"),
		TagsText:    strPtr(" go, , board ,"),
	}.Normalize()

	if *f.Title != "Write spec" || *f.Description != "body" {
		t.Fatalf("unexpected trimmed fields: %q %q", *f.Title, *f.Description)
	}
	if !reflect.DeepEqual(f.Tags, []string{"go", "board"}) {
		t.Fatalf("unexpected tags: %#v", f.Tags)
	}
	if f.TagsText != nil {
		t.Fatal("expected tags text to be consumed")
	}
}

func TestFieldsNormalizePrefersTags(t *testing.T) {
	f := Fields{Tags: []string{" a ", ""}, TagsText: strPtr("b")}.Normalize()
	if !reflect.DeepEqual(f.Tags, []string{"a"}) {
		t.Fatalf("unexpected tags: %#v", f.Tags)
	}
}

func TestFieldsCheck(t *testing.T) {
	if err := (Fields{}).Check(true); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected missing title error, got %v", err)
	}
	if err := (Fields{}).Check(false); err != nil {
		t.Fatalf("unexpected error for empty update: %v", err)
	}
	if err := (Fields{Title: strPtr("")}).Check(false); err == nil {
		t.Fatal("expected empty title to be rejected on update")
	}
	p := Priority("urgent")
	if err := (Fields{Title: strPtr("x"), Priority: &p}).Check(true); err == nil {
		t.Fatal("expected invalid priority error")
	}
	if err := (Fields{Title: strPtr("x"), DueDate: strPtr("31/12/2026")}).Check(true); err == nil {
		t.Fatal("expected invalid due date error")
	}
}

func TestNotFoundWrapsSentinel(t *testing.T) {
	err := NotFound("abc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "abc") {
		t.Fatalf("expected id in message: %v", err)
	}
}
