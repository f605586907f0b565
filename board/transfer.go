package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"kanban-board/domain"
)

// ExportFileName is the suggested name of an exported board.
const ExportFileName = "kanban-tasks.json"

const taskListSchemaURL = "https://kanban-board.local/tasks.schema.json"

const taskListSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "title", "priority", "status", "createdAt", "updatedAt"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "title": {"type": "string", "minLength": 1},
      "description": {"type": "string"},
      "priority": {"enum": ["low", "medium", "high"]},
      "dueDate": {"type": "string", "pattern": "^([0-9]{4}-[0-9]{2}-[0-9]{2})?$"},
      "tags": {"type": "array", "items": {"type": "string"}},
      "status": {"enum": ["todo", "in-progress", "review", "done"]},
      "createdAt": {"type": "string", "format": "date-time"},
      "updatedAt": {"type": "string", "format": "date-time"}
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(taskListSchemaURL, strings.NewReader(taskListSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(taskListSchemaURL)
	})
	return schema, schemaErr
}

// Export serialises tasks as an indented JSON array with a trailing newline.
func Export(tasks []domain.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	data, err := sonic.ConfigStd.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tasks: %w", err)
	}
	return append(data, '\n'), nil
}

// Import parses an exported board. Anything other than a JSON array of valid
// tasks yields a *domain.ParseError.
func Import(data []byte) ([]domain.Task, error) {
	var raw interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ParseError{Err: err}
	}
	if _, ok := raw.([]interface{}); !ok {
		return nil, &domain.ParseError{Err: errors.New("expected a JSON array")}
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(raw); err != nil {
		return nil, schemaParseError(err)
	}

	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		return nil, &domain.ParseError{Err: err}
	}

	seen := make(map[string]struct{}, len(tasks))
	for i := range tasks {
		if tasks[i].Tags == nil {
			tasks[i].Tags = []string{}
		}
		if err := tasks[i].Validate(); err != nil {
			return nil, &domain.ParseError{Path: "[" + strconv.Itoa(i) + "]", Err: err}
		}
		if _, dup := seen[tasks[i].ID]; dup {
			return nil, &domain.ParseError{Path: "[" + strconv.Itoa(i) + "].id", Err: fmt.Errorf("duplicate id %q", tasks[i].ID)}
		}
		seen[tasks[i].ID] = struct{}{}
	}
	return tasks, nil
}

// schemaParseError reports the first leaf cause of a schema violation.
func schemaParseError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &domain.ParseError{Err: err}
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return &domain.ParseError{Path: pointerToPath(ve.InstanceLocation), Err: errors.New(ve.Message)}
}

func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(strings.TrimPrefix(ptr, "#"), "/")
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	for _, part := range strings.Split(ptr, "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(part); err == nil {
			b.WriteString("[" + part + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}
