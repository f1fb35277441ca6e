package session

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-formwizard/pkg/hydrator"
	"github.com/goliatone/go-formwizard/pkg/model"
)

// Snapshot is the serialisable state of a session. Pending uploads are not
// included; only files the backend already holds survive a restore.
type Snapshot struct {
	ID          string                        `json:"id"`
	Wizard      string                        `json:"wizard"`
	State       model.SessionState            `json:"state"`
	Values      map[string]any                `json:"values"`
	Touched     map[string]bool               `json:"touched,omitempty"`
	Attachments map[string]hydrator.Persisted `json:"attachments,omitempty"`
}

// Marshal encodes the snapshot as JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a snapshot produced by Marshal.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("session: decode snapshot: %w", err)
	}
	return snap, nil
}

// Snapshot captures the session. A session caught mid-submission is
// recorded as editing so a restore never resumes a half-sent request.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		Wizard:      s.def.ID,
		State:       s.state,
		Values:      s.reg.Values(),
		Touched:     s.reg.Touched(),
		Attachments: make(map[string]hydrator.Persisted),
	}
	if snap.State.Phase == model.PhaseSubmitting {
		snap.State.Phase = model.PhaseEditing
	}
	for _, slot := range s.files.Slots() {
		if slot.PersistedName != "" {
			snap.Attachments[slot.FieldName] = hydrator.Persisted{Name: slot.PersistedName, URL: slot.PersistedURL}
			snap.Values[slot.FieldName] = slot.PersistedName
			continue
		}
		delete(snap.Values, slot.FieldName)
		delete(snap.Touched, slot.FieldName)
	}
	if len(snap.Attachments) == 0 {
		snap.Attachments = nil
	}
	return snap
}

// Restore rebuilds a session from snap. The step position is clamped to the
// definition so a snapshot taken against an older wizard still opens.
func Restore(def *model.Definition, snap Snapshot, options ...Option) (*Session, error) {
	if snap.Wizard != "" && snap.Wizard != def.ID {
		return nil, fmt.Errorf("%w: %q is not %q", ErrWizardMismatch, snap.Wizard, def.ID)
	}
	if snap.ID != "" {
		options = append([]Option{WithID(snap.ID)}, options...)
	}
	s := New(def, options...)

	s.reg.Restore(snap.Values, snap.Touched)
	for field, file := range snap.Attachments {
		_ = s.files.Seed(field, file.Name, file.URL)
	}

	state := snap.State
	last := def.LastStep()
	if state.MaxReachedStep > last {
		state.MaxReachedStep = last
	}
	if state.MaxReachedStep < 0 {
		state.MaxReachedStep = 0
	}
	if state.CurrentStep > state.MaxReachedStep {
		state.CurrentStep = state.MaxReachedStep
	}
	if state.CurrentStep < 0 {
		state.CurrentStep = 0
	}
	if state.Mode == "" {
		state.Mode = model.ModeCreate
	}
	if state.Phase == "" || state.Phase == model.PhaseSubmitting {
		state.Phase = model.PhaseEditing
	}
	s.state = state
	return s, nil
}
