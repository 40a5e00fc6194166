package match

import (
	"testing"

	"github.com/quickflip/marketbot/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"John Smith", "john smith"},
		{"  John   Smith  ", "john smith"},
		{"John Smith.", "john smith"},
		{"JOHN SMITH!!", "john smith"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSameBuyer(t *testing.T) {
	if !SameBuyer("John Smith", "john smith") {
		t.Fatal("expected case-insensitive match")
	}
	// The inbox list often shows only the first name.
	if !SameBuyer("John Smith", "John") {
		t.Fatal("expected prefix match for shortened display name")
	}
	if !SameBuyer("John", "John Smith") {
		t.Fatal("expected prefix match in the other direction")
	}
	if SameBuyer("John Smith", "Jane Smith") {
		t.Fatal("different first names must not match")
	}
	if SameBuyer("Johnny", "John") {
		t.Fatal("prefix without a word boundary must not match")
	}
	if SameBuyer("John", "") {
		t.Fatal("empty observed name must not match")
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("iPhone 13 Pro", "iphone 13 pro"); got != 1 {
		t.Fatalf("expected 1 for case-only difference, got %f", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Fatalf("expected 0 for fully distinct strings, got %f", got)
	}
	mid := Similarity("mountain bike", "mountain bikes")
	if mid <= 0.8 || mid >= 1 {
		t.Fatalf("expected near-1 score for one-char difference, got %f", mid)
	}
}

func TestBestListing(t *testing.T) {
	candidates := []domain.Listing{
		{ListingID: "lst_1", Title: "iPhone 13 Pro 256GB"},
		{ListingID: "lst_2", Title: "Trek Mountain Bike"},
	}

	got := BestListing("iphone 13 pro 256gb", candidates)
	if got == nil || got.ListingID != "lst_1" {
		t.Fatalf("expected lst_1, got %+v", got)
	}

	got = BestListing("trek mountain bike", candidates)
	if got == nil || got.ListingID != "lst_2" {
		t.Fatalf("expected lst_2, got %+v", got)
	}

	if got := BestListing("vintage record player", candidates); got != nil {
		t.Fatalf("expected no match below threshold, got %+v", got)
	}
	if got := BestListing("", candidates); got != nil {
		t.Fatalf("expected nil for empty title, got %+v", got)
	}
	if got := BestListing("anything", nil); got != nil {
		t.Fatalf("expected nil for no candidates, got %+v", got)
	}
}
