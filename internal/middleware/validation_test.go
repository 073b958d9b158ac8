package middleware

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTweetText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"valid short text", "hello world", nil},
		{"exactly max length", strings.Repeat("a", 144), nil},
		{"one over max length", strings.Repeat("a", 145), ErrTweetTextTooLong},
		{"multibyte counted as code points", strings.Repeat("é", 144), nil},
		{"multibyte over limit", strings.Repeat("é", 145), ErrTweetTextTooLong},
		{"emoji text", "🎉 launch day 🎉", nil},
		{"empty text", "", ErrTweetTextEmpty},
		{"whitespace only", "   \t\n", ErrTweetTextEmpty},
		{"newlines allowed", "line one\nline two", nil},
		{"control character rejected", "hello\x00world", ErrTweetTextInvalid},
		{"bell character rejected", "ding\adong", ErrTweetTextInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTweetText(tt.text)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateTweetText(%q) = %v, want %v", tt.text, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWebhookURL(t *testing.T) {
	if err := ValidateWebhookURL("https://example.com/hooks/chirp"); err != nil {
		t.Errorf("expected valid URL, got %v", err)
	}

	long := "https://example.com/" + strings.Repeat("a", MaxWebhookURLLength)
	if err := ValidateWebhookURL(long); !errors.Is(err, ErrWebhookURLTooLong) {
		t.Errorf("expected ErrWebhookURLTooLong, got %v", err)
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"valid", "dev@example.com", nil},
		{"valid subdomain", "dev@mail.example.co.uk", nil},
		{"empty", "", ErrEmailInvalid},
		{"missing at", "devexample.com", ErrEmailInvalid},
		{"missing local part", "@example.com", ErrEmailInvalid},
		{"missing domain", "dev@", ErrEmailInvalid},
		{"domain without dot", "dev@localhost", ErrEmailInvalid},
		{"contains space", "dev @example.com", ErrEmailInvalid},
		{"too long", strings.Repeat("a", 250) + "@e.com", ErrEmailInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"ulid", "01J5KQ3QG8Z7Y6X5W4V3U2T1S0", nil},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000", nil},
		{"empty", "", ErrIDInvalid},
		{"path traversal", "../etc/passwd", ErrIDInvalid},
		{"contains slash", "abc/def", ErrIDInvalid},
		{"too long", strings.Repeat("a", 65), ErrIDInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateID(%q) = %v, want %v", tt.id, err, tt.wantErr)
			}
		})
	}
}
