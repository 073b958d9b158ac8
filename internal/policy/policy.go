// Package policy provides authorization decisions for tweet actions.
package policy

import "github.com/chirp/chirp/internal/model"

// Action represents an operation subject to authorization.
type Action int

const (
	// ActionReadTweet allows reading a single tweet.
	ActionReadTweet Action = iota + 1
	// ActionCreateTweet allows posting a new tweet.
	ActionCreateTweet
	// ActionUpdateTweet allows editing text or toggling hidden.
	ActionUpdateTweet
	// ActionDeleteTweet allows soft-deleting a tweet.
	ActionDeleteTweet
)

// String returns the action name for logging.
func (a Action) String() string {
	switch a {
	case ActionReadTweet:
		return "read_tweet"
	case ActionCreateTweet:
		return "create_tweet"
	case ActionUpdateTweet:
		return "update_tweet"
	case ActionDeleteTweet:
		return "delete_tweet"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a policy check, with a reason for logging.
type Decision struct {
	Allowed bool
	Reason  string
}

// Can reports whether the actor may perform the action on the tweet.
//
// Rules:
//   - read: the actor is the author, or the tweet is not hidden
//     (anonymous actors may read visible tweets)
//   - create: any authenticated actor
//   - update/delete: the actor is an admin or the author
func Can(actor *model.User, action Action, tweet *model.Tweet) bool {
	return Check(actor, action, tweet).Allowed
}

// Check evaluates the policy and explains the decision.
func Check(actor *model.User, action Action, tweet *model.Tweet) Decision {
	switch action {
	case ActionReadTweet:
		return checkRead(actor, tweet)
	case ActionCreateTweet:
		if actor == nil {
			return deny("unauthenticated")
		}
		return allow("authenticated")
	case ActionUpdateTweet, ActionDeleteTweet:
		return checkModify(actor, tweet)
	default:
		return deny("unknown action")
	}
}

func checkRead(actor *model.User, tweet *model.Tweet) Decision {
	if tweet == nil {
		return deny("no record")
	}
	if actor.IsAuthorOf(tweet) {
		return allow("actor is author")
	}
	if !tweet.Hidden {
		return allow("tweet is not hidden")
	}
	return deny("tweet is hidden and actor is not the author")
}

func checkModify(actor *model.User, tweet *model.Tweet) Decision {
	if tweet == nil {
		return deny("no record")
	}
	if actor == nil {
		return deny("unauthenticated")
	}
	if actor.IsAdmin {
		return allow("actor is admin")
	}
	if actor.IsAuthorOf(tweet) {
		return allow("actor is author")
	}
	return deny("actor is neither admin nor author")
}

func allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
