package allocator

import (
	"errors"
	"testing"
	"time"

	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
	"parkcore/internal/timeline"
)

func testWindow(t *testing.T) entities.TimeWindow {
	t.Helper()
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	w, err := entities.NewTimeWindow(start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("bad window: %v", err)
	}
	return w
}

func TestAllocate(t *testing.T) {
	t.Parallel()

	t.Run("first candidate wins when free", func(t *testing.T) {
		arena := timeline.NewArena()
		alloc := New(arena)

		spot, err := alloc.Allocate("b1", testWindow(t), []string{"S1", "S2", "S3"})
		if err != nil {
			t.Fatalf("expected allocation, got %v", err)
		}
		if spot != "S1" {
			t.Fatalf("expected greedy first fit on S1, got %s", spot)
		}
	})

	t.Run("falls through to the next free candidate", func(t *testing.T) {
		arena := timeline.NewArena()
		if err := arena.TryCommit("S1", testWindow(t), "other"); err != nil {
			t.Fatalf("seed commit failed: %v", err)
		}
		alloc := New(arena)

		spot, err := alloc.Allocate("b1", testWindow(t), []string{"S1", "S2"})
		if err != nil {
			t.Fatalf("expected allocation, got %v", err)
		}
		if spot != "S2" {
			t.Fatalf("expected S2, got %s", spot)
		}
	})

	t.Run("no capacity when every candidate is busy", func(t *testing.T) {
		arena := timeline.NewArena()
		for _, s := range []string{"S1", "S2"} {
			if err := arena.TryCommit(s, testWindow(t), "other-"+s); err != nil {
				t.Fatalf("seed commit failed: %v", err)
			}
		}
		alloc := New(arena)

		_, err := alloc.Allocate("b1", testWindow(t), []string{"S1", "S2"})
		if !errors.Is(err, apperrors.ErrNoCapacity) {
			t.Fatalf("expected ErrNoCapacity, got %v", err)
		}
	})

	t.Run("failed attempt leaves no partial state", func(t *testing.T) {
		arena := timeline.NewArena()
		if err := arena.TryCommit("S1", testWindow(t), "other"); err != nil {
			t.Fatalf("seed commit failed: %v", err)
		}
		alloc := New(arena)

		if _, err := alloc.Allocate("b1", testWindow(t), []string{"S1"}); !errors.Is(err, apperrors.ErrNoCapacity) {
			t.Fatalf("expected ErrNoCapacity, got %v", err)
		}
		if arena.Holds("S1", "b1") {
			t.Fatal("loser must not hold anything on S1")
		}
		// The same request is re-triable once the conflict clears.
		arena.Release("S1", "other")
		spot, err := alloc.Allocate("b1", testWindow(t), []string{"S1"})
		if err != nil || spot != "S1" {
			t.Fatalf("expected retry to land on S1, got %s err=%v", spot, err)
		}
	})

	t.Run("empty candidate list is no capacity", func(t *testing.T) {
		alloc := New(timeline.NewArena())
		_, err := alloc.Allocate("b1", testWindow(t), nil)
		if !errors.Is(err, apperrors.ErrNoCapacity) {
			t.Fatalf("expected ErrNoCapacity, got %v", err)
		}
	})
}
