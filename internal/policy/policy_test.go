package policy

import (
	"testing"

	"github.com/chirp/chirp/internal/model"
)

var (
	author    = &model.User{ID: "user-author"}
	stranger  = &model.User{ID: "user-stranger"}
	admin     = &model.User{ID: "user-admin", IsAdmin: true}
	anonymous *model.User
)

func visibleTweet() *model.Tweet {
	return &model.Tweet{ID: "tweet-1", Text: "hello", AuthorID: author.ID}
}

func hiddenTweet() *model.Tweet {
	return &model.Tweet{ID: "tweet-2", Text: "secret", Hidden: true, AuthorID: author.ID}
}

func TestCan_Read(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		actor *model.User
		tweet *model.Tweet
		want  bool
	}{
		{"author_reads_own_visible", author, visibleTweet(), true},
		{"author_reads_own_hidden", author, hiddenTweet(), true},
		{"stranger_reads_visible", stranger, visibleTweet(), true},
		{"stranger_reads_hidden", stranger, hiddenTweet(), false},
		{"admin_reads_hidden_of_other", admin, hiddenTweet(), false},
		{"anonymous_reads_visible", anonymous, visibleTweet(), true},
		{"anonymous_reads_hidden", anonymous, hiddenTweet(), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Can(test.actor, ActionReadTweet, test.tweet); got != test.want {
				t.Errorf("Can(read) = %v, want %v", got, test.want)
			}
		})
	}
}

func TestCan_Update(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		actor *model.User
		tweet *model.Tweet
		want  bool
	}{
		{"author_updates_own", author, visibleTweet(), true},
		{"stranger_updates_other", stranger, visibleTweet(), false},
		{"admin_updates_any", admin, visibleTweet(), true},
		{"admin_updates_hidden", admin, hiddenTweet(), true},
		{"anonymous_updates", anonymous, visibleTweet(), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Can(test.actor, ActionUpdateTweet, test.tweet); got != test.want {
				t.Errorf("Can(update) = %v, want %v", got, test.want)
			}
		})
	}
}

func TestCan_Delete(t *testing.T) {
	t.Parallel()

	if !Can(author, ActionDeleteTweet, visibleTweet()) {
		t.Error("author should delete own tweet")
	}
	if !Can(admin, ActionDeleteTweet, visibleTweet()) {
		t.Error("admin should delete any tweet")
	}
	if Can(stranger, ActionDeleteTweet, visibleTweet()) {
		t.Error("stranger should not delete")
	}
}

func TestCan_Create(t *testing.T) {
	t.Parallel()

	if !Can(stranger, ActionCreateTweet, nil) {
		t.Error("any authenticated actor should create")
	}
	if Can(anonymous, ActionCreateTweet, nil) {
		t.Error("anonymous actor should not create")
	}
}

func TestCheck_Reasons(t *testing.T) {
	t.Parallel()

	d := Check(stranger, ActionReadTweet, hiddenTweet())
	if d.Allowed {
		t.Fatal("expected denial")
	}
	if d.Reason == "" {
		t.Error("denial should carry a reason")
	}

	d = Check(admin, ActionUpdateTweet, visibleTweet())
	if !d.Allowed || d.Reason != "actor is admin" {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestCan_NilTweet(t *testing.T) {
	t.Parallel()

	if Can(admin, ActionReadTweet, nil) {
		t.Error("read of nil record should be denied")
	}
	if Can(admin, ActionUpdateTweet, nil) {
		t.Error("update of nil record should be denied")
	}
}
