package fiber

import (
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(WithIdle(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	s := newTestScheduler(t)

	if got := len(s.Fibers()); got != 1 {
		t.Fatalf("fiber count = %d, want 1 (fiber 0)", got)
	}
	main := s.Current()
	if !main.Main() || main.ID() != 0 || main.Name() != "main" {
		t.Fatalf("fiber 0 = {id=%d name=%q main=%v}", main.ID(), main.Name(), main.Main())
	}
}

func TestSpawn(t *testing.T) {
	t.Run("spawned fiber does not run before a switch", func(t *testing.T) {
		s := newTestScheduler(t)

		ran := false
		s.Spawn("lazy", func() { ran = true })

		time.Sleep(10 * time.Millisecond)
		if ran {
			t.Fatal("fiber ran before being switched in")
		}
	})

	t.Run("ids follow spawn order", func(t *testing.T) {
		s := newTestScheduler(t)

		a := s.Spawn("a", func() {})
		b := s.Spawn("b", func() {})
		if a.ID() != 1 || b.ID() != 2 {
			t.Fatalf("ids = %d, %d, want 1, 2", a.ID(), b.ID())
		}
	})

	t.Run("nil entry panics", func(t *testing.T) {
		s := newTestScheduler(t)

		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		s.Spawn("bad", nil)
	})
}

func TestYield(t *testing.T) {
	t.Run("single fiber yield is a no-op", func(t *testing.T) {
		s := newTestScheduler(t)
		s.Yield() // must not deadlock
		if !s.Current().Main() {
			t.Fatal("current is not fiber 0")
		}
	})

	t.Run("round robin is deterministic in spawn order", func(t *testing.T) {
		s := newTestScheduler(t)

		var order []string
		s.Spawn("first", func() {
			order = append(order, "first.a")
			s.Yield()
			order = append(order, "first.b")
		})
		s.Spawn("second", func() {
			order = append(order, "second.a")
			s.Yield()
			order = append(order, "second.b")
		})

		// Round 1: each fiber runs up to its own yield, then control returns
		// to fiber 0. Round 2: each finishes its entry.
		s.Yield()
		want := []string{"first.a", "second.a"}
		assertOrder(t, order, want)

		s.Yield()
		want = []string{"first.a", "second.a", "first.b", "second.b"}
		assertOrder(t, order, want)
	})

	t.Run("completed fibers stay schedulable as no-ops", func(t *testing.T) {
		s := newTestScheduler(t)

		runs := 0
		f := s.Spawn("once", func() { runs++ })

		for i := 0; i < 5; i++ {
			s.Yield()
		}
		if runs != 1 {
			t.Fatalf("entry ran %d times, want 1", runs)
		}
		if !f.Completed() {
			t.Fatal("fiber not marked completed")
		}
	})
}

func TestCurrent(t *testing.T) {
	s := newTestScheduler(t)

	var insideID uint64
	f := s.Spawn("probe", func() {
		insideID = s.Current().ID()
	})

	s.Yield()
	if insideID != f.ID() {
		t.Fatalf("Current inside fiber = %d, want %d", insideID, f.ID())
	}
	if !s.Current().Main() {
		t.Fatal("Current after yield round is not fiber 0")
	}
}

func TestFibersSnapshot(t *testing.T) {
	s := newTestScheduler(t)
	s.Spawn("a", func() {})

	snap := s.Fibers()
	s.Spawn("b", func() {})
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2 (must not see later spawns)", len(snap))
	}
}

func assertOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
