package generator

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/chirp/chirp/internal/changeset"
	"github.com/chirp/chirp/internal/model"
)

const propertyIterations = 200

func TestTweetText_LengthBounds(t *testing.T) {
	t.Parallel()

	g := New(42)
	for i := 0; i < propertyIterations; i++ {
		text := g.TweetText()
		n := utf8.RuneCountInString(text)
		if n < 1 || n > model.MaxTweetTextLength {
			t.Fatalf("iteration %d: text length %d out of bounds: %q", i, n, text)
		}
	}
}

func TestTweetInput_AlwaysValidChangeset(t *testing.T) {
	t.Parallel()

	g := New(42)
	for i := 0; i < propertyIterations; i++ {
		input := g.TweetInput("user-1")
		cs := changeset.ForCreate(input)
		if !cs.Valid() {
			t.Fatalf("iteration %d: generated input produced invalid changeset: %v (input %+v)",
				i, cs.Errors(), input)
		}
	}
}

func TestInvalidTweetInput_AlwaysRefused(t *testing.T) {
	t.Parallel()

	g := New(42)
	for i := 0; i < propertyIterations; i++ {
		input, kind := g.InvalidTweetInput("user-1")
		cs := changeset.ForCreate(input)
		if cs.Valid() {
			t.Fatalf("iteration %d: invalid input produced valid changeset (kind %d, input %+v)",
				i, kind, input)
		}
		if !errors.Is(cs.Err(), kind.ExpectedError()) {
			t.Fatalf("iteration %d: expected %v, got %v", i, kind.ExpectedError(), cs.Err())
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	t.Parallel()

	a := New(7)
	b := New(7)
	for i := 0; i < 50; i++ {
		if a.TweetText() != b.TweetText() {
			t.Fatalf("iteration %d: same seed should yield same sequence", i)
		}
	}
}

func TestUser_UniqueEmails(t *testing.T) {
	t.Parallel()

	g := New(42)
	seen := make(map[string]bool)
	for i := 0; i < propertyIterations; i++ {
		u := g.User()
		if u.Email == "" {
			t.Fatal("email should not be empty")
		}
		if seen[u.Email] {
			t.Fatalf("duplicate email generated: %s", u.Email)
		}
		seen[u.Email] = true
	}
}
