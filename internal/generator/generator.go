// Package generator produces randomized domain inputs for property tests
// and for seeding development databases with diverse data.
package generator

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/chirp/chirp/internal/changeset"
	"github.com/chirp/chirp/internal/model"
)

// Generator produces random tweet and user inputs from a seeded RNG.
// The same seed yields the same sequence, so failing property tests
// can be replayed.
type Generator struct {
	rng *rand.Rand
}

// New creates a Generator with the given seed.
// A zero seed is replaced with a fixed default so callers that do not
// care about the seed still get reproducible output.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = 1
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// TweetInput generates a valid create input for the given author.
// The text is always 1..144 code points.
func (g *Generator) TweetInput(authorID string) changeset.CreateInput {
	input := changeset.CreateInput{
		Text:     g.TweetText(),
		AuthorID: authorID,
	}
	// Roughly one in four generated tweets is hidden.
	if g.rng.Intn(4) == 0 {
		hidden := true
		input.Hidden = &hidden
	}
	return input
}

// TweetText generates tweet text between 1 and 144 code points.
func (g *Generator) TweetText() string {
	target := 1 + g.rng.Intn(model.MaxTweetTextLength)

	var b strings.Builder
	for runeLen(b.String()) < target {
		word := tweetWords[g.rng.Intn(len(tweetWords))]
		candidate := word
		if b.Len() > 0 {
			candidate = " " + word
		}
		if runeLen(b.String()+candidate) > target {
			break
		}
		b.WriteString(candidate)
	}

	text := b.String()
	if text == "" {
		// Target was shorter than every word; fall back to a single rune.
		text = string(tweetWords[g.rng.Intn(len(tweetWords))][0])
	}
	return text
}

// InvalidKind identifies which validation a generated input violates.
type InvalidKind int

const (
	InvalidEmptyText InvalidKind = iota
	InvalidTooLong
	InvalidMissingAuthor
	invalidKindCount
)

// InvalidTweetInput generates an input violating exactly one validation,
// returning the input and the kind of violation.
func (g *Generator) InvalidTweetInput(authorID string) (changeset.CreateInput, InvalidKind) {
	kind := InvalidKind(g.rng.Intn(int(invalidKindCount)))

	switch kind {
	case InvalidEmptyText:
		blanks := []string{"", "   ", "\t\n"}
		return changeset.CreateInput{
			Text:     blanks[g.rng.Intn(len(blanks))],
			AuthorID: authorID,
		}, kind

	case InvalidTooLong:
		// 145..288 code points
		extra := 1 + g.rng.Intn(model.MaxTweetTextLength)
		return changeset.CreateInput{
			Text:     strings.Repeat("x", model.MaxTweetTextLength+extra),
			AuthorID: authorID,
		}, kind

	default:
		return changeset.CreateInput{
			Text:     g.TweetText(),
			AuthorID: "",
		}, InvalidMissingAuthor
	}
}

// ExpectedError returns the changeset sentinel a violation kind maps to.
func (k InvalidKind) ExpectedError() error {
	switch k {
	case InvalidEmptyText:
		return changeset.ErrTextRequired
	case InvalidTooLong:
		return changeset.ErrTextTooLong
	default:
		return changeset.ErrAuthorRequired
	}
}

// UserInput holds a generated user registration.
type UserInput struct {
	Email   string
	IsAdmin bool
}

// User generates a user registration with a unique email.
// About one in ten generated users is an admin.
func (g *Generator) User() UserInput {
	name := handles[g.rng.Intn(len(handles))]
	return UserInput{
		Email:   fmt.Sprintf("%s-%s@example.test", name, uuid.NewString()[:8]),
		IsAdmin: g.rng.Intn(10) == 0,
	}
}

// runeLen counts code points, matching the changeset's length rule.
func runeLen(s string) int {
	return len([]rune(s))
}
