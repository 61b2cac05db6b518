// Package ssm implements the scenario state machine (spec §4.2): a small
// tagged union tracking where each chat is in its conversation, persisted
// in Redis with a 1-hour TTL so abandoned conversations don't linger
// forever (spec §9 decision: /start never cancels an in-flight job, it only
// resets the conversation state in front of it).
package ssm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imageverify/api/internal/scenario"
)

// Stage is the closed set of states a conversation can be in.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageAwaitingScenario  Stage = "awaiting_scenario"
	StageTeenagerStopShown Stage = "teenager_stop_shown"
	StageAwaitingUpload    Stage = "awaiting_upload"
	StageProcessing        Stage = "processing"
	StageShowingResult     Stage = "showing_result"
)

// State is the tagged union persisted per chat.
type State struct {
	Stage        Stage             `json:"stage"`
	Scenario     scenario.Scenario `json:"scenario"`
	PreserveEXIF bool              `json:"preserve_exif"`
	JobID        string            `json:"job_id,omitempty"`
	AnalysisID   string            `json:"analysis_id,omitempty"`
}

const ttl = time.Hour

type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(chatID int64) string {
	return fmt.Sprintf("ssm:%d", chatID)
}

// Get returns the chat's current state, or the zero (idle) state if none is
// stored — a conversation that never started, or one whose TTL expired.
func (s *Store) Get(ctx context.Context, chatID int64) (State, error) {
	data, err := s.rdb.Get(ctx, key(chatID)).Bytes()
	if err == redis.Nil {
		return State{Stage: StageIdle, Scenario: scenario.General}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("ssm: get %d: %w", chatID, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("ssm: unmarshal %d: %w", chatID, err)
	}
	return st, nil
}

func (s *Store) Set(ctx context.Context, chatID int64, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("ssm: marshal %d: %w", chatID, err)
	}
	if err := s.rdb.Set(ctx, key(chatID), data, ttl).Err(); err != nil {
		return fmt.Errorf("ssm: set %d: %w", chatID, err)
	}
	return nil
}

// Reset returns the chat to idle, as /start does (spec §9: it never cancels
// a job already enqueued, it only resets the conversational state sitting
// in front of it).
func (s *Store) Reset(ctx context.Context, chatID int64) error {
	return s.Set(ctx, chatID, State{Stage: StageIdle, Scenario: scenario.General})
}

// Transition table (spec §4.2):
//
//	idle                 --/start-->               awaiting_scenario
//	awaiting_scenario    --pick adult/general-->    awaiting_upload
//	awaiting_scenario    --pick teenager-->          teenager_stop_shown
//	awaiting_scenario    --image upload-->           (legacy path) analysis, scenario=general
//	teenager_stop_shown  --ready-->                  awaiting_upload
//	awaiting_upload      --photo-->                  processing
//	processing           --job done-->               showing_result
//	showing_result       --/start-->                 awaiting_scenario
//	any                  --/start-->                 awaiting_scenario (state cleared)
//	any                  --unhandled upload-->        awaiting_scenario (with hint)
//
// The processing --job done--> showing_result edge is not performed by any
// caller: the worker does not write conversation state, so a chat stays in
// processing until /start, an upload (which resets it with a hint), or the
// TTL expires.
//
// CanUpload reports whether the chat is in a stage that accepts a photo
// directly. awaiting_scenario is handled separately by the router's legacy
// upload path rather than folded in here, since it additionally has to coerce
// the scenario to general (spec §4.2: "SelectingScenario --image upload-->
// Analysis (scenario=general) [legacy path]").
func (st State) CanUpload() bool {
	return st.Stage == StageAwaitingUpload
}

// CanPickScenario reports whether the chat is in a stage that accepts a
// scenario selection.
func (st State) CanPickScenario() bool {
	return st.Stage == StageAwaitingScenario
}

// CanConfirmReady reports whether the chat is in the teenager distress gate
// awaiting its "ready" acknowledgement (spec §4.2: TeenagerStopShown --ready-->
// TeenagerWaitingForPhoto).
func (st State) CanConfirmReady() bool {
	return st.Stage == StageTeenagerStopShown
}
