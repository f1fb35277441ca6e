package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/assembler"
	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/refdata"
	"github.com/goliatone/go-formwizard/pkg/rules"
	"github.com/goliatone/go-formwizard/pkg/store"
)

// PayloadValidator checks an assembled DTO before it is sent. The operation
// is the create or update operation id of the wizard.
type PayloadValidator interface {
	Validate(operation string, dto map[string]any) error
}

// Option configures a Session.
type Option func(*Session)

// WithStore sets the entity store submissions go to.
func WithStore(s store.Store) Option {
	return func(sess *Session) {
		sess.store = s
	}
}

// WithRefData sets the provider behind Options and strict option checks.
func WithRefData(provider refdata.Provider) Option {
	return func(sess *Session) {
		sess.refs = provider
	}
}

// WithPayloadValidator checks payloads before they reach the store.
func WithPayloadValidator(v PayloadValidator) Option {
	return func(sess *Session) {
		sess.validator = v
	}
}

// WithClock sets "today" for age and date rules.
func WithClock(now func() time.Time) Option {
	return func(sess *Session) {
		if now != nil {
			sess.now = now
		}
	}
}

// WithLogger attaches a logger. Child components log through it.
func WithLogger(logger *zap.Logger) Option {
	return func(sess *Session) {
		if logger != nil {
			sess.logger = logger
		}
	}
}

// WithStrict rejects writes to undeclared fields instead of logging them.
func WithStrict(strict bool) Option {
	return func(sess *Session) {
		sess.strict = strict
	}
}

// WithRules replaces the validation rule table.
func WithRules(set *rules.Set) Option {
	return func(sess *Session) {
		sess.rules = set
	}
}

// WithAssembler replaces the payload assembler.
func WithAssembler(a *assembler.Assembler) Option {
	return func(sess *Session) {
		if a != nil {
			sess.asm = a
		}
	}
}

// WithAttachmentOptions forwards options to the attachment manager.
func WithAttachmentOptions(options ...attachments.Option) Option {
	return func(sess *Session) {
		sess.attachmentOptions = append(sess.attachmentOptions, options...)
	}
}

// WithID fixes the session id instead of generating one.
func WithID(id string) Option {
	return func(sess *Session) {
		if id != "" {
			sess.id = id
		}
	}
}
