// Package cli drives a wizard session from the terminal: one prompt per
// visible field, a progress line per step and a review before submitting.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/assembler"
	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/session"
)

// Navigation choices offered after each step.
const (
	ChoiceNext   = "Next"
	ChoiceSubmit = "Review and submit"
	ChoiceBack   = "Back"
	ChoiceCancel = "Cancel"
)

// skipOption leaves an optional select empty.
const skipOption = "(skip)"

// Option configures a Runner.
type Option func(*Runner)

// Runner walks a session step by step.
type Runner struct {
	driver   PromptDriver
	widgets  *Widgets
	readFile func(string) ([]byte, error)
	logger   *zap.Logger
}

// WithPromptDriver overrides the survey driver.
func WithPromptDriver(driver PromptDriver) Option {
	return func(r *Runner) {
		if driver != nil {
			r.driver = driver
		}
	}
}

// WithWidgets replaces the built-in prompt kinds.
func WithWidgets(widgets *Widgets) Option {
	return func(r *Runner) {
		if widgets != nil {
			r.widgets = widgets
		}
	}
}

// WithFileReader replaces os.ReadFile for attachment paths.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(r *Runner) {
		if read != nil {
			r.readFile = read
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner returns a runner prompting on the terminal by default.
func NewRunner(options ...Option) *Runner {
	r := &Runner{
		widgets:  NewWidgets(),
		readFile: os.ReadFile,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver(nil)
	}
	return r
}

// Run prompts until the session is submitted or the user cancels. A
// submission failure is shown and the final step offered again; declining to
// retry returns the *session.SubmissionError.
func (r *Runner) Run(ctx context.Context, s *session.Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		view := s.View()
		if view.Phase == model.PhaseSubmitted {
			return r.driver.Info(ctx, fmt.Sprintf("Saved %s (id %s)", view.Label, s.State().EntityID))
		}
		if err := r.driver.Info(ctx, Progress(view)); err != nil {
			return err
		}
		if err := r.showErrors(ctx, view); err != nil {
			return err
		}

		step := view.Current()
		if err := r.promptStep(ctx, s, step); err != nil {
			return err
		}

		choice, err := r.navigate(ctx, view)
		if err != nil {
			return err
		}
		switch choice {
		case ChoiceCancel:
			return ErrAborted
		case ChoiceBack:
			if err := s.Retreat(); err != nil {
				return err
			}
			continue
		case ChoiceSubmit:
			confirmed, err := r.review(ctx, s)
			if err != nil {
				return err
			}
			if !confirmed {
				continue
			}
		}

		res, err := s.Advance(ctx)
		if err != nil {
			if retry, handleErr := r.handleSubmitError(ctx, err); !retry {
				return handleErr
			}
			continue
		}
		if !res.Valid {
			r.logger.Debug("step invalid", zap.String("step", step.ID), zap.Int("errors", len(res.Errors)))
		}
	}
}

func (r *Runner) showErrors(ctx context.Context, view session.View) error {
	if view.Error != "" && view.Phase == model.PhaseFailed {
		if err := r.driver.Info(ctx, errorLine("Submission", view.Error)); err != nil {
			return err
		}
	}
	for _, msg := range view.FormErrors {
		if err := r.driver.Info(ctx, errorLine("Form", msg)); err != nil {
			return err
		}
	}
	for _, field := range view.Current().Fields {
		if field.Error == "" || field.Hidden {
			continue
		}
		if err := r.driver.Info(ctx, errorLine(field.Label, field.Error)); err != nil {
			return err
		}
	}
	return nil
}

// promptStep asks every visible field of step in declaration order. The
// view is refreshed after each answer so rules and cascades take effect
// within the step.
func (r *Runner) promptStep(ctx context.Context, s *session.Session, step session.StepView) error {
	for _, name := range fieldNames(step) {
		field, ok := currentField(s, name)
		if !ok || field.Hidden || field.Disabled {
			continue
		}
		def, _ := s.Definition().Field(name)
		var err error
		switch r.widgets.Resolve(def) {
		case WidgetFile:
			err = r.promptFile(ctx, s, field)
		case WidgetSelect:
			err = r.promptOptions(ctx, s, field)
		case WidgetChoice:
			err = r.promptEnum(ctx, s, field, enumValues(def))
		default:
			err = r.promptText(ctx, s, field)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) promptText(ctx context.Context, s *session.Session, field session.FieldView) error {
	answer, err := r.driver.Input(ctx, InputConfig{
		Message: promptLabel(field),
		Default: model.Stringify(field.Value),
		Help:    field.Error,
	})
	if err != nil {
		return err
	}
	answer = strings.TrimSpace(answer)
	if answer == model.Stringify(field.Value) {
		return nil
	}
	if answer == "" {
		return s.Set(field.Name, nil)
	}
	return s.Set(field.Name, answer)
}

func (r *Runner) promptEnum(ctx context.Context, s *session.Session, field session.FieldView, values []string) error {
	if len(values) == 0 {
		return r.promptText(ctx, s, field)
	}
	options := append([]string(nil), values...)
	if !field.Required {
		options = append([]string{skipOption}, options...)
	}
	idx, err := r.driver.Select(ctx, SelectConfig{
		Message:      promptLabel(field),
		Options:      options,
		DefaultIndex: indexOf(options, model.Stringify(field.Value)),
		Help:         field.Error,
	})
	if err != nil {
		return err
	}
	return r.setChoice(s, field, options, values, idx)
}

func (r *Runner) promptOptions(ctx context.Context, s *session.Session, field session.FieldView) error {
	choices, err := s.Options(ctx, field.Name)
	if err != nil {
		return err
	}
	if len(choices) == 0 {
		r.logger.Debug("no options yet", zap.String("field", field.Name))
		return nil
	}
	labels := make([]string, 0, len(choices)+1)
	values := make([]string, 0, len(choices))
	current := model.Stringify(field.Value)
	defaultIdx := -1
	if !field.Required {
		labels = append(labels, skipOption)
	}
	for _, choice := range choices {
		if choice.Value == current {
			defaultIdx = len(labels)
		}
		label := choice.Label
		if label == "" {
			label = choice.Value
		}
		labels = append(labels, label)
		values = append(values, choice.Value)
	}
	idx, err := r.driver.Select(ctx, SelectConfig{
		Message:      promptLabel(field),
		Options:      labels,
		DefaultIndex: defaultIdx,
		Help:         field.Error,
		PageSize:     10,
	})
	if err != nil {
		return err
	}
	return r.setChoice(s, field, labels, values, idx)
}

func (r *Runner) setChoice(s *session.Session, field session.FieldView, options, values []string, idx int) error {
	if idx < 0 || idx >= len(options) {
		return nil
	}
	if options[idx] == skipOption {
		return s.Set(field.Name, nil)
	}
	offset := len(options) - len(values)
	return s.Set(field.Name, values[idx-offset])
}

// promptFile asks for a path until a file is accepted. An empty answer keeps
// whatever the slot holds.
func (r *Runner) promptFile(ctx context.Context, s *session.Session, field session.FieldView) error {
	help := "path to the file, empty to keep the current one"
	current := ""
	if field.Attachment != nil {
		current = field.Attachment.Name
	}
	for {
		message := promptLabel(field) + " (file)"
		if current != "" {
			message += " [" + current + "]"
		}
		answer, err := r.driver.Input(ctx, InputConfig{Message: message, Help: help})
		if err != nil {
			return err
		}
		path := strings.TrimSpace(answer)
		if path == "" {
			return nil
		}
		data, err := r.readFile(path)
		if err != nil {
			if infoErr := r.driver.Info(ctx, errorLine(field.Label, err.Error())); infoErr != nil {
				return infoErr
			}
			continue
		}
		_, err = s.Attach(field.Name, attachments.File{Name: filepath.Base(path), Data: data})
		var attErr *attachments.Error
		if errors.As(err, &attErr) {
			if infoErr := r.driver.Info(ctx, errorLine(field.Label, attErr.Message())); infoErr != nil {
				return infoErr
			}
			continue
		}
		return err
	}
}

func (r *Runner) navigate(ctx context.Context, view session.View) (string, error) {
	next := ChoiceNext
	if view.IsLastStep {
		next = ChoiceSubmit
	}
	options := []string{next}
	if view.CanGoBack {
		options = append(options, ChoiceBack)
	}
	options = append(options, ChoiceCancel)
	idx, err := r.driver.Select(ctx, SelectConfig{Message: "Continue?", Options: options})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(options) {
		return ChoiceCancel, nil
	}
	return options[idx], nil
}

func (r *Runner) review(ctx context.Context, s *session.Session) (bool, error) {
	summary, err := Review(s.View())
	if err != nil {
		return false, fmt.Errorf("cli: render review: %w", err)
	}
	if err := r.driver.Info(ctx, summary); err != nil {
		return false, err
	}
	return r.driver.Confirm(ctx, ConfirmConfig{Message: "Submit these details?", Default: true})
}

// handleSubmitError reports a failed submission and asks whether to edit and
// retry. It returns false with the error to stop.
func (r *Runner) handleSubmitError(ctx context.Context, err error) (bool, error) {
	var subErr *session.SubmissionError
	var incomplete *assembler.IncompleteSubmissionError
	switch {
	case errors.As(err, &subErr):
		r.logger.Warn("submission failed", zap.Int("status", subErr.Status), zap.Error(subErr.Err))
	case errors.As(err, &incomplete):
		r.logger.Warn("submission incomplete", zap.Strings("fields", incomplete.Fields))
	default:
		return false, err
	}
	retry, confirmErr := r.driver.Confirm(ctx, ConfirmConfig{Message: "Saving failed. Edit and try again?", Default: true})
	if confirmErr != nil {
		return false, confirmErr
	}
	if !retry {
		return false, err
	}
	return true, nil
}

func fieldNames(step session.StepView) []string {
	names := make([]string, 0, len(step.Fields))
	for _, field := range step.Fields {
		names = append(names, field.Name)
	}
	return names
}

func currentField(s *session.Session, name string) (session.FieldView, bool) {
	for _, field := range s.View().Current().Fields {
		if field.Name == name {
			return field, true
		}
	}
	return session.FieldView{}, false
}

func promptLabel(field session.FieldView) string {
	if field.Required {
		return field.Label + " *"
	}
	return field.Label
}
