package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNotPaid  = errors.New("registration is not paid")
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// AssignmentError rejects a manual save. Nothing was written.
type AssignmentError struct {
	UnknownChildIDs []uint `json:"unknown_child_ids,omitempty"`
	UnknownGroupIDs []uint `json:"unknown_group_ids,omitempty"`
}

func (e *AssignmentError) Error() string {
	var parts []string
	if len(e.UnknownChildIDs) > 0 {
		parts = append(parts, "unknown child ids "+joinIDs(e.UnknownChildIDs))
	}
	if len(e.UnknownGroupIDs) > 0 {
		parts = append(parts, "unknown group ids "+joinIDs(e.UnknownGroupIDs))
	}
	return "invalid assignments: " + strings.Join(parts, "; ")
}

func (e *AssignmentError) empty() bool {
	return len(e.UnknownChildIDs) == 0 && len(e.UnknownGroupIDs) == 0
}

func IsValidation(err error) bool {
	switch errors.Cause(err).(type) {
	case *ValidationError, *AssignmentError:
		return true
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

func joinIDs(ids []uint) string {
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	s := make([]string, len(sorted))
	for i, id := range sorted {
		s[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(s, ", ") + "]"
}
