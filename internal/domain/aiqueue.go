// Package domain defines the persistence models for the handoff backend.
// This file provides the typed view over a conversation's ai_queued_* columns:
// an explicit tagged state with one constructor per legal transition, so that
// combinations like "paused with nothing queued" cannot be built.
package domain

import "time"

// QueuePhase identifies the AI-queue state of a conversation.
type QueuePhase string

// AI-queue phases. QueueIdle means no AI reply is pending. QueueQueued and
// QueuePaused are both sub-states of "pending": a reply is held, waiting for
// the human-priority window to elapse or for an agent to intervene.
const (
	QueueIdle   QueuePhase = "idle"
	QueueQueued QueuePhase = "queued"
	QueuePaused QueuePhase = "paused"
)

// AI-queue actions accepted by the state machine. These four are the only
// legal values; anything else is a validation error, never an implicit no-op.
const (
	ActionQueue  = "queue"
	ActionClear  = "clear"
	ActionPause  = "pause"
	ActionResume = "resume"
)

// ValidQueueAction reports whether action is one of the four legal values.
func ValidQueueAction(action string) bool {
	switch action {
	case ActionQueue, ActionClear, ActionPause, ActionResume:
		return true
	}
	return false
}

// QueueState is the tagged AI-queue state of one conversation. Since, Preview,
// and WindowMS are only meaningful while Phase is queued or paused; in the
// idle phase they are zero/nil.
type QueueState struct {
	Phase    QueuePhase
	Since    time.Time
	Preview  string
	WindowMS *int
}

// QueueStateOf derives the tagged state from a conversation row. A row with
// the paused flag set but no queued timestamp is normalized to idle rather
// than surfaced as an illegal combination.
func QueueStateOf(c *Conversation) QueueState {
	if c == nil || c.AIQueuedAt == nil {
		return QueueState{Phase: QueueIdle}
	}
	st := QueueState{
		Phase:    QueueQueued,
		Since:    *c.AIQueuedAt,
		WindowMS: c.AIQueuedWindowMS,
	}
	if c.AIQueuedPreview != nil {
		st.Preview = *c.AIQueuedPreview
	}
	if c.AIQueuedPaused {
		st.Phase = QueuePaused
	}
	return st
}

// Pending reports whether an AI reply is held (queued or paused).
func (s QueueState) Pending() bool { return s.Phase != QueueIdle }

// Apply returns the state after performing action at time now.
//
// Transition table:
//   - queue:  any -> queued, with a fresh timestamp and preview. Re-queueing
//     always resets the countdown basis; it never merges with a prior state.
//   - clear:  any -> idle.
//   - pause:  queued -> paused. Timestamp and preview are untouched, so an
//     agent pausing does not reset the countdown basis. Pausing while idle
//     leaves the state unchanged.
//   - resume: paused -> queued. Resuming while idle leaves the state unchanged.
//
// changed reports whether the returned state differs from the receiver, so
// callers can skip redundant writes.
func (s QueueState) Apply(action string, now time.Time, preview string, windowMS *int) (next QueueState, changed bool) {
	switch action {
	case ActionQueue:
		win := s.WindowMS
		if windowMS != nil {
			win = windowMS
		}
		return QueueState{Phase: QueueQueued, Since: now, Preview: preview, WindowMS: win}, true
	case ActionClear:
		return QueueState{Phase: QueueIdle}, s.Pending()
	case ActionPause:
		if s.Phase != QueueQueued {
			return s, false
		}
		s.Phase = QueuePaused
		return s, true
	case ActionResume:
		if s.Phase != QueuePaused {
			return s, false
		}
		s.Phase = QueueQueued
		return s, true
	}
	return s, false
}

// Columns flattens the tagged state back into the ai_queued_* column values
// for a single-statement update.
func (s QueueState) Columns() (queuedAt *time.Time, preview *string, paused bool, windowMS *int) {
	if s.Phase == QueueIdle {
		return nil, nil, false, nil
	}
	t := s.Since
	p := s.Preview
	return &t, &p, s.Phase == QueuePaused, s.WindowMS
}
