package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is a workflow's position in the enhancement pipeline. Progression
// is strictly linear; the transition table below is the only mutation path.
type Status string

const (
	StatusResearching  Status = "researching"
	StatusStructuring  Status = "structuring"
	StatusFactchecking Status = "factchecking"
	StatusFinalizing   Status = "finalizing"
	StatusDraftReady   Status = "draft_ready"
)

// statusOrder gives each status an ordinal so replayed messages can be
// classified as stale or premature without enumerating pairs.
var statusOrder = map[Status]int{
	StatusResearching:  0,
	StatusStructuring:  1,
	StatusFactchecking: 2,
	StatusFinalizing:   3,
	StatusDraftReady:   4,
}

var transitions = map[Status]Status{
	StatusResearching:  StatusStructuring,
	StatusStructuring:  StatusFactchecking,
	StatusFactchecking: StatusFinalizing,
	StatusFinalizing:   StatusDraftReady,
}

// Valid reports whether the status belongs to the known set.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Terminal reports whether the workflow has finished.
func (s Status) Terminal() bool {
	return s == StatusDraftReady
}

// Next returns the successor status from the transition table.
func (s Status) Next() (Status, bool) {
	next, ok := transitions[s]
	return next, ok
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	return status, status.Valid()
}

// Input is the immutable request a workflow was started with.
type Input struct {
	ItemID      string   `json:"item_id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	SourceID    string   `json:"source_id,omitempty"`
	Category    string   `json:"category,omitempty"`
	Section     string   `json:"section,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Featured    bool     `json:"featured,omitempty"`
}

// Validate rejects inputs that cannot start a workflow.
func (in Input) Validate() error {
	if strings.TrimSpace(in.ItemID) == "" {
		return fmt.Errorf("item id required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("title required")
	}
	return nil
}

// StageResult is one completed stage's output.
type StageResult struct {
	Payload     string    `json:"payload"`
	CompletedAt time.Time `json:"completed_at"`
}

// State is the sole source of truth for one workflow. Revision mirrors the
// store row's revision it was loaded at and never serializes with the value.
type State struct {
	ID           string                 `json:"id"`
	Input        Input                  `json:"input"`
	Status       Status                 `json:"status"`
	StageResults map[string]StageResult `json:"stage_results,omitempty"`
	PageID       string                 `json:"page_id,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`

	Revision int64 `json:"-"`
}

// StateKey returns the store key a workflow persists under.
func StateKey(itemID string) string {
	return "workflow/" + itemID
}

// Advance moves the workflow one step along the transition table.
func (s *State) Advance() error {
	next, ok := s.Status.Next()
	if !ok {
		return fmt.Errorf("no transition from status %q", s.Status)
	}
	s.Status = next
	return nil
}

// RecordResult stores a stage's output, replacing any in-flight result a
// redelivered message produced for the same stage.
func (s *State) RecordResult(stage string, payload string, at time.Time) {
	if s.StageResults == nil {
		s.StageResults = make(map[string]StageResult)
	}
	s.StageResults[stage] = StageResult{Payload: payload, CompletedAt: at.UTC()}
}

// Result returns a completed stage's payload.
func (s *State) Result(stage string) (string, bool) {
	result, ok := s.StageResults[stage]
	return result.Payload, ok
}

// Encode serializes the state for the store.
func (s *State) Encode() (string, error) {
	encoded, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode workflow state: %w", err)
	}
	return string(encoded), nil
}

// DecodeState parses a stored state value at the given revision.
func DecodeState(value string, revision int64) (*State, error) {
	var state State
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	if !state.Status.Valid() {
		return nil, fmt.Errorf("decode workflow state: unknown status %q", state.Status)
	}
	state.Revision = revision
	return &state, nil
}
