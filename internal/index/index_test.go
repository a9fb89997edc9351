package index

import (
	"context"
	"testing"
)

func TestIndex_ReserveThenExists(t *testing.T) {
	t.Parallel()
	idx, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Reserve(ctx, "/dest/a.txt"); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	exists, err := idx.Exists(ctx, "/dest/a.txt")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("expected reserved path to exist")
	}
}

func TestIndex_ReserveCollision(t *testing.T) {
	t.Parallel()
	idx, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Reserve(ctx, "/dest/a.txt"); err != nil {
		t.Fatalf("first Reserve() error = %v", err)
	}
	if err := idx.Reserve(ctx, "/dest/a.txt"); err != ErrAlreadyClaimed {
		t.Fatalf("second Reserve() error = %v, want ErrAlreadyClaimed", err)
	}
}

func TestIndex_SeedPopulatesExists(t *testing.T) {
	t.Parallel()
	idx, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Seed(ctx, []string{"/dest/existing.pdf", "/dest/other.pdf"}); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	exists, err := idx.Exists(ctx, "/dest/existing.pdf")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("expected seeded path to exist")
	}

	if err := idx.Reserve(ctx, "/dest/existing.pdf"); err != ErrAlreadyClaimed {
		t.Fatalf("Reserve() over seeded path error = %v, want ErrAlreadyClaimed", err)
	}
}

func TestIndex_ExistsFalseForUnknownPath(t *testing.T) {
	t.Parallel()
	idx, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()

	exists, err := idx.Exists(context.Background(), "/dest/never-seen.txt")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("expected unknown path to not exist")
	}
}
