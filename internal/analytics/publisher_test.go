package analytics

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateVisitorHash_Deterministic(t *testing.T) {
	t.Parallel()

	ip := "192.168.1.100"
	userAgent := "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	viewedAt := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	hash1 := GenerateVisitorHash(ip, userAgent, viewedAt)
	hash2 := GenerateVisitorHash(ip, userAgent, viewedAt)

	if hash1 != hash2 {
		t.Error("Same inputs should produce same hash")
	}
	if len(hash1) != 16 {
		t.Errorf("Hash length = %d, want 16", len(hash1))
	}
}

func TestGenerateVisitorHash_DailyRotation(t *testing.T) {
	t.Parallel()

	ip := "192.168.1.100"
	userAgent := "Mozilla/5.0"

	day1 := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)

	if GenerateVisitorHash(ip, userAgent, day1) == GenerateVisitorHash(ip, userAgent, day2) {
		t.Error("Different days should produce different hashes to prevent cross-day tracking")
	}
}

func TestGenerateVisitorHash_SameDayDifferentTime(t *testing.T) {
	t.Parallel()

	ip := "192.168.1.100"
	userAgent := "Mozilla/5.0"

	morning := time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)

	if GenerateVisitorHash(ip, userAgent, morning) != GenerateVisitorHash(ip, userAgent, evening) {
		t.Error("Same day should produce same hash regardless of time")
	}
}

func TestGenerateVisitorHash_DifferentInputs(t *testing.T) {
	t.Parallel()

	viewedAt := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ip1  string
		ua1  string
		ip2  string
		ua2  string
	}{
		{"different IP", "192.168.1.1", "Mozilla/5.0", "192.168.1.2", "Mozilla/5.0"},
		{"different UA", "192.168.1.1", "Chrome/100", "192.168.1.1", "Firefox/100"},
		{"both different", "10.0.0.1", "Safari/15", "10.0.0.2", "Edge/100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hash1 := GenerateVisitorHash(tt.ip1, tt.ua1, viewedAt)
			hash2 := GenerateVisitorHash(tt.ip2, tt.ua2, viewedAt)

			if hash1 == hash2 {
				t.Error("Different inputs should produce different hashes")
			}
		})
	}
}

func TestSanitizeReferrer_StripQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strip utm params",
			input:    "https://example.com/page?utm_source=test&utm_medium=email",
			expected: "https://example.com/page",
		},
		{
			name:     "strip all query params",
			input:    "https://google.com/search?q=test&hl=en",
			expected: "https://google.com/search",
		},
		{
			name:     "strip fragment",
			input:    "https://example.com/page#section",
			expected: "https://example.com/page",
		},
		{
			name:     "strip both query and fragment",
			input:    "https://example.com/path?query=1#section",
			expected: "https://example.com/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if result := SanitizeReferrer(tt.input); result != tt.expected {
				t.Errorf("SanitizeReferrer(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeReferrer_Empty(t *testing.T) {
	t.Parallel()

	if result := SanitizeReferrer(""); result != "" {
		t.Errorf("SanitizeReferrer(\"\") = %q, want empty string", result)
	}
}

func TestSanitizeReferrer_Truncate(t *testing.T) {
	t.Parallel()

	longURL := "https://example.com/" + strings.Repeat("a", 600)

	if result := SanitizeReferrer(longURL); len(result) > 500 {
		t.Errorf("Sanitized referrer length = %d, want <= 500", len(result))
	}
}

func TestExtractCountryCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"us", "US"},
		{"US", "US"},
		{"gb", "GB"},
		{"vn", "VN"},
		{"", ""},
		{"USA", ""},
		{"U", ""},
	}

	for _, tt := range tests {
		if result := ExtractCountryCode(tt.input); result != tt.expected {
			t.Errorf("ExtractCountryCode(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestExtractReferrerDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"https://google.com/search?q=test", "google.com"},
		{"https://www.example.com/path/to/page", "www.example.com"},
		{"http://subdomain.domain.com:8080/path", "subdomain.domain.com:8080"},
		{"", "(direct)"},
		{"https:///path", "(unknown)"},
		{"/path/to/page", "(unknown)"},
	}

	for _, tt := range tests {
		if result := ExtractReferrerDomain(tt.input); result != tt.expected {
			t.Errorf("ExtractReferrerDomain(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{"short UA", "Mozilla/5.0", 11},
		{"exact 500", strings.Repeat("x", 500), 500},
		{"over 500", strings.Repeat("x", 600), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if result := TruncateUserAgent(tt.input); len(result) != tt.wantLen {
				t.Errorf("TruncateUserAgent length = %d, want %d", len(result), tt.wantLen)
			}
		})
	}
}
