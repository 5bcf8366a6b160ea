package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/tjfontaine/convolens/internal/storage"
)

func TestMemoryStore_SaveAndList(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		purpose := "flag"
		if i%2 == 0 {
			purpose = "score"
		}
		err := store.SaveInteraction(ctx, &storage.Interaction{
			ID:      fmt.Sprintf("int-%d", i),
			Purpose: purpose,
			Status:  storage.StatusOK,
		})
		if err != nil {
			t.Fatalf("SaveInteraction() error = %v", err)
		}
	}

	all, err := store.ListInteractions(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("count = %d, want 5", len(all))
	}
	if all[0].ID != "int-4" {
		t.Errorf("first = %s, want newest int-4", all[0].ID)
	}

	scores, _ := store.ListInteractions(ctx, storage.ListOptions{Purpose: "score"})
	if len(scores) != 3 {
		t.Errorf("score count = %d, want 3", len(scores))
	}

	page, _ := store.ListInteractions(ctx, storage.ListOptions{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].ID != "int-3" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestMemoryStore_Bounded(t *testing.T) {
	store := New(2)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		store.SaveInteraction(ctx, &storage.Interaction{ID: fmt.Sprintf("int-%d", i)})
	}

	all, _ := store.ListInteractions(ctx, storage.ListOptions{})
	if len(all) != 2 {
		t.Fatalf("count = %d, want 2", len(all))
	}
	if all[1].ID != "int-2" {
		t.Errorf("oldest kept = %s, want int-2", all[1].ID)
	}
}

func TestMemoryStore_RequiresID(t *testing.T) {
	if err := New(0).SaveInteraction(context.Background(), &storage.Interaction{}); err == nil {
		t.Error("expected error for missing id")
	}
}
