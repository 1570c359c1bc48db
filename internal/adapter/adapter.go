// Package adapter defines the source-adapter contract and its
// implementations. Each adapter takes the subject and returns a settled
// result; the orchestrator never sees a panic or an unwrapped error cross
// this boundary.
package adapter

import (
	"context"

	"github.com/foundry-bot/partner-research/internal/model"
)

// Result is the settled outcome of one source call.
type Result struct {
	Success   bool            `json:"success"`
	Source    string          `json:"source"`
	Query     string          `json:"query,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	Raw       string          `json:"raw,omitempty"`
	Err       string          `json:"error,omitempty"`
	ErrorKind model.ErrorKind `json:"error_kind,omitempty"`
}

// Failure builds a failed Result.
func Failure(source, query string, kind model.ErrorKind, msg string) Result {
	return Result{Source: source, Query: query, Err: msg, ErrorKind: kind}
}

// Adapter is one research data source.
type Adapter interface {
	// Name returns the source label used on research records.
	Name() string
	// Research queries the source for the subject. It always returns a
	// settled Result, never an error.
	Research(ctx context.Context, subject model.Subject) Result
}
