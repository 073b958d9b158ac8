// Package changeset builds pending, validated mutations for tweets.
// A changeset collects attribute changes, applies defaults, and runs
// validations before the service layer executes the mutation.
package changeset

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chirp/chirp/internal/model"
)

// Changeset errors.
var (
	ErrTextRequired   = errors.New("text is required")
	ErrTextTooLong    = errors.New("text exceeds maximum length")
	ErrAuthorRequired = errors.New("author_id is required")
	ErrInvalid        = errors.New("changeset is invalid")
	ErrNoChanges      = errors.New("no changes to apply")
)

// Action identifies the mutation a changeset performs.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// FieldError associates a validation error with the attribute that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// Changeset represents a pending, validated mutation of a tweet.
// Build one with ForCreate or ForUpdate; execute it only when Valid.
type Changeset struct {
	action  Action
	base    *model.Tweet
	changes map[string]any
	errs    []FieldError
}

// CreateInput defines input for a tweet create changeset.
type CreateInput struct {
	Text     string
	Hidden   *bool // nil applies the default (false)
	AuthorID string
}

// UpdateInput defines input for a tweet update changeset.
// Nil fields are left unchanged.
type UpdateInput struct {
	Text   *string
	Hidden *bool
}

// ForCreate builds a changeset that creates a new tweet.
// Defaults are applied first, then validations run.
func ForCreate(input CreateInput) *Changeset {
	cs := &Changeset{
		action:  ActionCreate,
		changes: make(map[string]any),
	}

	cs.changes["text"] = strings.TrimSpace(input.Text)

	// hidden defaults to false
	hidden := false
	if input.Hidden != nil {
		hidden = *input.Hidden
	}
	cs.changes["hidden"] = hidden

	cs.changes["author_id"] = input.AuthorID

	cs.validateText(cs.changes["text"].(string))
	if input.AuthorID == "" {
		cs.addError("author_id", ErrAuthorRequired)
	}

	return cs
}

// ForUpdate builds a changeset that modifies an existing tweet.
// Only supplied fields are recorded as changes.
func ForUpdate(existing *model.Tweet, input UpdateInput) *Changeset {
	cs := &Changeset{
		action:  ActionUpdate,
		base:    existing,
		changes: make(map[string]any),
	}

	if input.Text != nil {
		text := strings.TrimSpace(*input.Text)
		cs.changes["text"] = text
		cs.validateText(text)
	}

	if input.Hidden != nil {
		cs.changes["hidden"] = *input.Hidden
	}

	return cs
}

// Action returns the mutation the changeset performs.
func (cs *Changeset) Action() Action {
	return cs.action
}

// Valid reports whether the changeset may be executed.
func (cs *Changeset) Valid() bool {
	return len(cs.errs) == 0
}

// Errors returns the field-keyed validation errors.
func (cs *Changeset) Errors() []FieldError {
	return cs.errs
}

// Err returns the first validation error, or nil when valid.
// The returned error matches the package sentinels via errors.Is.
func (cs *Changeset) Err() error {
	if len(cs.errs) == 0 {
		return nil
	}
	return cs.errs[0]
}

// Changed reports whether the changeset records a change for the field.
func (cs *Changeset) Changed(field string) bool {
	_, ok := cs.changes[field]
	return ok
}

// Change returns the pending value for a field, if any.
func (cs *Changeset) Change(field string) (any, bool) {
	v, ok := cs.changes[field]
	return v, ok
}

// Apply materializes the changeset without persisting it.
// For creates it returns a new tweet (without an ID); for updates it
// returns a copy of the base tweet with changes applied.
// Returns ErrInvalid when validations failed and ErrNoChanges for an
// update with nothing to do.
func (cs *Changeset) Apply(now time.Time) (*model.Tweet, error) {
	if !cs.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, cs.Err())
	}

	switch cs.action {
	case ActionCreate:
		return &model.Tweet{
			Text:      cs.changes["text"].(string),
			Hidden:    cs.changes["hidden"].(bool),
			AuthorID:  cs.changes["author_id"].(string),
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		}, nil

	case ActionUpdate:
		if len(cs.changes) == 0 {
			return nil, ErrNoChanges
		}
		updated := *cs.base
		if text, ok := cs.changes["text"]; ok {
			updated.Text = text.(string)
		}
		if hidden, ok := cs.changes["hidden"]; ok {
			updated.Hidden = hidden.(bool)
		}
		updated.UpdatedAt = now.UTC()
		return &updated, nil

	default:
		return nil, fmt.Errorf("unknown changeset action: %s", cs.action)
	}
}

// validateText checks the required/length rules for tweet text.
func (cs *Changeset) validateText(text string) {
	if text == "" {
		cs.addError("text", ErrTextRequired)
		return
	}
	if utf8.RuneCountInString(text) > model.MaxTweetTextLength {
		cs.addError("text", ErrTextTooLong)
	}
}

// addError records a field validation error.
func (cs *Changeset) addError(field string, err error) {
	cs.errs = append(cs.errs, FieldError{Field: field, Err: err})
}
