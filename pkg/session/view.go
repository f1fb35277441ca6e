package session

import (
	"github.com/goliatone/go-formwizard/pkg/model"
)

// AttachmentView is the display state of a file field.
type AttachmentView struct {
	Name          string `json:"name,omitempty"`
	PreviewHandle string `json:"previewHandle,omitempty"`
	PersistedURL  string `json:"persistedUrl,omitempty"`
	Pending       bool   `json:"pending"`
}

// FieldView is what a renderer needs for one input.
type FieldView struct {
	Name       string          `json:"name"`
	Label      string          `json:"label"`
	Value      any             `json:"value,omitempty"`
	Error      string          `json:"error,omitempty"`
	Touched    bool            `json:"touched"`
	Disabled   bool            `json:"disabled"`
	Hidden     bool            `json:"hidden"`
	Required   bool            `json:"required"`
	Options    bool            `json:"options,omitempty"`
	Attachment *AttachmentView `json:"attachment,omitempty"`
}

// StepView is the display state of one step.
type StepView struct {
	Index       int         `json:"index"`
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	IsActive    bool        `json:"isActive"`
	IsReachable bool        `json:"isReachable"`
	IsComplete  bool        `json:"isComplete"`
	Fields      []FieldView `json:"fields"`
}

// View is a read-only projection of the session for renderers.
type View struct {
	SessionID    string      `json:"sessionId"`
	Wizard       string      `json:"wizard"`
	Label        string      `json:"label"`
	Mode         model.Mode  `json:"mode"`
	Phase        model.Phase `json:"phase"`
	CurrentStep  int         `json:"currentStep"`
	Steps        []StepView  `json:"steps"`
	CanGoNext    bool        `json:"canGoNext"`
	CanGoBack    bool        `json:"canGoBack"`
	IsSubmitting bool        `json:"isSubmitting"`
	IsLastStep   bool        `json:"isLastStep"`
	Error        string      `json:"error,omitempty"`
	FormErrors   []string    `json:"formErrors,omitempty"`
}

// Current returns the active step.
func (v View) Current() StepView {
	if v.CurrentStep < 0 || v.CurrentStep >= len(v.Steps) {
		return StepView{}
	}
	return v.Steps[v.CurrentStep]
}

// View projects the session for display. It never annotates errors.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	submitting := s.state.Phase == model.PhaseSubmitting
	locked := submitting || s.state.Phase == model.PhaseSubmitted || s.closed

	view := View{
		SessionID:    s.id,
		Wizard:       s.def.ID,
		Label:        s.def.Label,
		Mode:         s.state.Mode,
		Phase:        s.state.Phase,
		CurrentStep:  s.state.CurrentStep,
		CanGoNext:    !locked,
		CanGoBack:    !locked && s.state.CurrentStep > 0,
		IsSubmitting: submitting,
		IsLastStep:   s.state.CurrentStep == s.def.LastStep(),
		FormErrors:   append([]string(nil), s.formErrors...),
	}
	if s.lastErr != nil {
		view.Error = userMessage(s.lastErr)
	}

	for _, step := range s.def.Steps {
		schema, err := s.reg.ActiveSchema(step.Index)
		if err != nil {
			continue
		}
		sv := StepView{
			Index:       step.Index,
			ID:          step.ID,
			Label:       step.Label,
			IsActive:    step.Index == s.state.CurrentStep,
			IsReachable: step.Index <= s.state.MaxReachedStep,
			IsComplete:  step.Index <= s.state.MaxReachedStep && s.reg.IsStepComplete(step.Index),
			Fields:      make([]FieldView, 0, len(step.Fields)),
		}
		for _, field := range step.Fields {
			slot, _ := s.reg.Get(field.Name)
			effective, _ := schema.Field(field.Name)
			fv := FieldView{
				Name:     field.Name,
				Label:    labelOf(field),
				Value:    slot.Value,
				Error:    slot.Error,
				Touched:  slot.Touched,
				Disabled: field.Disabled || locked,
				Hidden:   effective.Hidden,
				Required: effective.Required && !effective.Hidden,
				Options:  field.Options != nil,
			}
			if field.IsAttachment() {
				if file, ok := s.files.Slot(field.Name); ok {
					fv.Attachment = &AttachmentView{
						Name:          file.DisplayName(),
						PreviewHandle: file.PreviewHandle,
						PersistedURL:  file.PersistedURL,
						Pending:       file.Pending(),
					}
				}
			}
			sv.Fields = append(sv.Fields, fv)
		}
		view.Steps = append(view.Steps, sv)
	}
	return view
}

type userMessenger interface {
	UserMessage() string
}

type messenger interface {
	Message() string
}

func userMessage(err error) string {
	switch typed := err.(type) {
	case userMessenger:
		return typed.UserMessage()
	case messenger:
		return typed.Message()
	}
	return GenericSubmissionMessage
}
