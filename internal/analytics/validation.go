package analytics

import "fmt"

const (
	maxTweetIDLength  = 64
	maxMetaLength     = 500
	visitorHashLength = 16
)

// ValidateViewEventPayload checks a stream payload before it reaches
// the database. Payloads failing here are dead-lettered, not retried.
func ValidateViewEventPayload(payload ViewEventPayload) error {
	if payload.TweetID == "" {
		return fmt.Errorf("tweet_id is required")
	}
	if len(payload.TweetID) > maxTweetIDLength {
		return fmt.Errorf("tweet_id too long")
	}
	if payload.VisitorHash == "" {
		return fmt.Errorf("visitor_hash is required")
	}
	if len(payload.VisitorHash) != visitorHashLength || !isHex(payload.VisitorHash) {
		return fmt.Errorf("visitor_hash must be %d hex chars", visitorHashLength)
	}
	if payload.CountryCode != "" && len(payload.CountryCode) != 2 {
		return fmt.Errorf("country_code must be 2 chars")
	}
	if payload.ViewedAt <= 0 {
		return fmt.Errorf("viewed_at must be set")
	}
	if len(payload.Referrer) > maxMetaLength {
		return fmt.Errorf("referrer too long")
	}
	if len(payload.UserAgent) > maxMetaLength {
		return fmt.Errorf("user_agent too long")
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
