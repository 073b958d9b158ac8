package repository

import (
	"testing"

	"github.com/chirp/chirp/internal/model"
)

func TestAccumulateDailyStats(t *testing.T) {
	events := []*model.ViewEvent{
		{
			Referrer:    "https://example.com/page",
			CountryCode: "US",
			VisitorHash: "visitor-a",
		},
		{
			Referrer:    "",
			CountryCode: "US",
			VisitorHash: "visitor-b",
		},
		{
			Referrer:    "https://example.com/other",
			CountryCode: "VN",
			VisitorHash: "visitor-a",
		},
	}

	acc := accumulateDailyStats(events)

	if acc.totalViews != 3 {
		t.Fatalf("expected total views 3, got %d", acc.totalViews)
	}
	if acc.uniqueVisitors != 2 {
		t.Fatalf("expected unique visitors 2, got %d", acc.uniqueVisitors)
	}
	if acc.referrers["example.com"] != 2 {
		t.Fatalf("expected example.com referrers 2, got %d", acc.referrers["example.com"])
	}
	if acc.referrers["(direct)"] != 1 {
		t.Fatalf("expected direct referrers 1, got %d", acc.referrers["(direct)"])
	}
	if acc.countries["US"] != 2 {
		t.Fatalf("expected US views 2, got %d", acc.countries["US"])
	}
	if acc.countries["VN"] != 1 {
		t.Fatalf("expected VN views 1, got %d", acc.countries["VN"])
	}
}

func TestReferrerDomain(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://example.com/page", "example.com"},
		{"https://news.ycombinator.com/item?id=1", "news.ycombinator.com"},
		{"garbage", "(unknown)"},
		{"", "(unknown)"},
	}

	for _, tc := range tests {
		if got := referrerDomain(tc.raw); got != tc.want {
			t.Errorf("referrerDomain(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
