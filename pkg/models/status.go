package models

import (
	"encoding/json"
	"fmt"
)

// ExecutionStatus is the unified state shared by assets, jobs, embed codes,
// MMRK renders and watermarked renders. It is persisted as a string; decoding
// an unknown value fails with *InvalidStatusError rather than silently
// producing an invalid state.
type ExecutionStatus string

const (
	StatusNew      ExecutionStatus = "New"
	StatusRunning  ExecutionStatus = "Running"
	StatusFinished ExecutionStatus = "Finished"
	StatusError    ExecutionStatus = "Error"
	StatusAborted  ExecutionStatus = "Aborted"
)

// InvalidStatusError reports a status string outside the closed set.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid execution status %q", e.Value)
}

// ParseExecutionStatus validates and converts a persisted status string.
func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	switch ExecutionStatus(s) {
	case StatusNew, StatusRunning, StatusFinished, StatusError, StatusAborted:
		return ExecutionStatus(s), nil
	}
	return "", &InvalidStatusError{Value: s}
}

// Valid reports whether s is a member of the closed status set.
func (s ExecutionStatus) Valid() bool {
	_, err := ParseExecutionStatus(string(s))
	return err == nil
}

// Terminal reports whether s is a final state. Terminal records are never
// overwritten by notifications; redelivered messages for them are
// dead-lettered instead.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusAborted
}

func (s ExecutionStatus) String() string { return string(s) }

func (s *ExecutionStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseExecutionStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
