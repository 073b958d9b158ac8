// Package middleware provides HTTP middleware for the Chirp API.
package middleware

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chirp/chirp/internal/model"
)

// Validation limits.
const (
	// MaxWebhookURLLength is the maximum length for webhook URLs.
	MaxWebhookURLLength = 1024

	// MaxEmailLength is the maximum length for user email addresses.
	MaxEmailLength = 254

	// MaxIDLength is the maximum length for resource identifiers in paths.
	MaxIDLength = 64
)

// Validation errors.
var (
	ErrTweetTextEmpty    = errors.New("tweet text is required")
	ErrTweetTextTooLong  = errors.New("tweet text exceeds maximum length")
	ErrTweetTextInvalid  = errors.New("tweet text contains invalid characters")
	ErrWebhookURLTooLong = errors.New("webhook URL exceeds maximum length")
	ErrEmailInvalid      = errors.New("email address is invalid")
	ErrIDInvalid         = errors.New("identifier is invalid")
)

// validIDPattern matches identifiers accepted in URL paths.
// Covers ULIDs and UUIDs without committing to either format.
var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// ValidateTweetText validates tweet text for create and update requests.
// Length is measured in Unicode code points, not bytes.
func ValidateTweetText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrTweetTextEmpty
	}

	if utf8.RuneCountInString(text) > model.MaxTweetTextLength {
		return ErrTweetTextTooLong
	}

	// Reject control characters other than newline and tab.
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return ErrTweetTextInvalid
		}
	}

	return nil
}

// ValidateWebhookURL validates a webhook target URL length.
// Scheme and SSRF checks are done in webhook.ValidateTargetURL.
func ValidateWebhookURL(url string) error {
	if len(url) > MaxWebhookURLLength {
		return ErrWebhookURLTooLong
	}
	return nil
}

// ValidateEmail performs a shallow sanity check on an email address.
// Full RFC 5322 validation is deliberately out of scope.
func ValidateEmail(email string) error {
	if email == "" || len(email) > MaxEmailLength {
		return ErrEmailInvalid
	}

	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return ErrEmailInvalid
	}

	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.ContainsAny(email, " \t\n") {
		return ErrEmailInvalid
	}

	return nil
}

// ValidateID validates a resource identifier from a URL path.
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength {
		return ErrIDInvalid
	}

	if !validIDPattern.MatchString(id) {
		return ErrIDInvalid
	}

	return nil
}
