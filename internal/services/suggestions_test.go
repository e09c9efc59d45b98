package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateOrFallback(t *testing.T) {
	ctx := context.Background()
	req := SuggestionRequest{ExistingIdeas: []string{"one"}}

	list, fallback, err := GenerateOrFallback(ctx, NewFixedProvider("a", "b", "c", "d", "e"), req)
	if err != nil || fallback {
		t.Fatalf("unexpected fallback: %v %v", fallback, err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, list); diff != "" {
		t.Fatalf("list not truncated (-want +got):\n%s", diff)
	}

	failing := NewFixedProvider()
	failing.Err = errors.New("timeout")
	list, fallback, err = GenerateOrFallback(ctx, failing, req)
	if !fallback || err == nil || !cmp.Equal(list, FallbackSuggestions) {
		t.Fatalf("want fallback with error, got %v %v %v", list, fallback, err)
	}

	list, fallback, _ = GenerateOrFallback(ctx, NewFixedProvider(), req)
	if !fallback || len(list) != len(FallbackSuggestions) {
		t.Fatalf("empty result should fall back: %v", list)
	}
	list, fallback, _ = GenerateOrFallback(ctx, nil, req)
	if !fallback || len(list) != len(FallbackSuggestions) {
		t.Fatalf("missing provider should fall back: %v", list)
	}

	// The fallback list is a copy.
	list[0] = "changed"
	if FallbackSuggestions[0] == "changed" {
		t.Fatalf("fallback list shared with caller")
	}
	if got := failing.Requests(); len(got) != 1 || got[0].ExistingIdeas[0] != "one" {
		t.Fatalf("request not recorded: %+v", got)
	}
}

func TestDatasetCatalog(t *testing.T) {
	if got := len(Datasets()); got != 6 {
		t.Fatalf("want 6 datasets, got %d", got)
	}
	ds, err := DatasetByID(FirstTransferDataset)
	if err != nil || ds.ID != FirstTransferDataset || len(ds.Variables) == 0 {
		t.Fatalf("transfer dataset: %+v %v", ds, err)
	}
	ds.Variables[0] = "mutated"
	again, _ := DatasetByID(FirstTransferDataset)
	if again.Variables[0] == "mutated" {
		t.Fatalf("catalog entry shared with caller")
	}
	if _, err := DatasetByID(7); !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("want ErrDatasetNotFound, got %v", err)
	}
}
