package document

import "fmt"

// Code classifies why the validator rejected an operation.
type Code string

const (
	UnknownParent      Code = "unknown_parent"
	DuplicateID        Code = "duplicate_id"
	UnknownEntity      Code = "unknown_entity"
	InvalidReorder     Code = "invalid_reorder"
	InvalidCardinality Code = "invalid_cardinality"
)

// ValidationError reports a rejected operation. The snapshot it was applied
// to is guaranteed unchanged.
type ValidationError struct {
	Code Code
	Ref  string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Msg, e.Ref)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func invalid(code Code, ref, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Ref: ref, Msg: fmt.Sprintf(format, args...)}
}
