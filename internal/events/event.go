// Package events describes the record emitted when a pipeline stage
// finishes and the publishers that ship it to the run recorder.
package events

import (
	"fmt"
	"os"
	"time"

	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/kafka"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// RunEvent summarises one command invocation.
type RunEvent struct {
	ID         string            `json:"id"`
	Stage      string            `json:"stage"`
	Status     Status            `json:"status"`
	Host       string            `json:"host,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	DurationMs int64             `json:"duration_ms"`
	Inputs     map[string]string `json:"inputs,omitempty"`
	Outputs    []string          `json:"outputs,omitempty"`
	Result     json.RawMessage   `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// NewRunEvent starts an event for stage. An empty id draws a fresh one.
func NewRunEvent(id, stage string) *RunEvent {
	if id == "" {
		id = uuid.NewString()
	}
	host, _ := os.Hostname()
	return &RunEvent{
		ID:        id,
		Stage:     stage,
		Host:      host,
		StartedAt: time.Now().UTC(),
		Inputs:    make(map[string]string),
	}
}

func (e *RunEvent) Input(key, value string) {
	if value != "" {
		e.Inputs[key] = value
	}
}

func (e *RunEvent) Output(path string) {
	e.Outputs = append(e.Outputs, path)
}

// Finish stamps the end time and outcome. result, when non-nil, is stored
// as JSON.
func (e *RunEvent) Finish(result any, runErr error) error {
	e.FinishedAt = time.Now().UTC()
	e.DurationMs = e.FinishedAt.Sub(e.StartedAt).Milliseconds()
	e.ExitCode = xerrors.ExitCode(runErr)
	if runErr != nil {
		e.Status = StatusFailed
		e.Error = runErr.Error()
	} else {
		e.Status = StatusSucceeded
	}
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding run result: %w", err)
	}
	e.Result = data
	return nil
}

// Validate checks the fields the recorder relies on.
func (e RunEvent) Validate() error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("run event id %q: %w", e.ID, err)
	}
	if e.Stage == "" {
		return fmt.Errorf("run event %s has no stage", e.ID)
	}
	switch e.Status {
	case StatusSucceeded, StatusFailed:
	default:
		return fmt.Errorf("run event %s has unknown status %q", e.ID, e.Status)
	}
	return nil
}

// Decode parses and validates a message produced by a Publisher.
func Decode(value []byte) (RunEvent, error) {
	event, err := kafka.DecodeJSON[RunEvent](value)
	if err != nil {
		return RunEvent{}, err
	}
	if err := event.Validate(); err != nil {
		return RunEvent{}, err
	}
	return event, nil
}
