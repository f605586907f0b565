package domain

import "strings"

// Fields carries the editable task values submitted by the task form.
// Nil members are left untouched on update.
type Fields struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	// TagsText is the raw comma separated tag input. It is used when Tags is nil.
	TagsText *string `json:"tagsText,omitempty"`
}

// Normalize trims text input and resolves TagsText into Tags.
func (f Fields) Normalize() Fields {
	if f.Title != nil {
		v := strings.TrimSpace(*f.Title)
		f.Title = &v
	}
	if f.Description != nil {
		v := strings.TrimSpace(*f.Description)
		f.Description = &v
	}
	if f.DueDate != nil {
		v := strings.TrimSpace(*f.DueDate)
		f.DueDate = &v
	}
	if f.Tags != nil {
		f.Tags = cleanTags(f.Tags)
	} else if f.TagsText != nil {
		f.Tags = ParseTags(*f.TagsText)
	}
	f.TagsText = nil
	return f
}

// Check validates the provided values. requireTitle is set on create.
func (f Fields) Check(requireTitle bool) error {
	if f.Title == nil {
		if requireTitle {
			return &ValidationError{Field: "title", Message: "title is required"}
		}
	} else if *f.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if f.Priority != nil && !f.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "priority must be one of low, medium, high"}
	}
	if f.DueDate != nil {
		if err := ValidateDueDate(*f.DueDate); err != nil {
			return err
		}
	}
	return nil
}

// ParseTags splits comma separated input, dropping blank entries.
func ParseTags(s string) []string {
	return cleanTags(strings.Split(s, ","))
}

func cleanTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
