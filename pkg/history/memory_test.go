package history

import (
	"slices"
	"testing"
)

// recorder collects navigation events.
type recorder struct {
	events []string
}

func (r *recorder) listen(rawQuery string) {
	r.events = append(r.events, rawQuery)
}

func TestMemory_ReplaceDoesNotNotify(t *testing.T) {
	h := NewMemory("?search=phones")
	rec := &recorder{}
	h.Listen(rec.listen)

	if got := h.Location(); got != "search=phones" {
		t.Errorf("Location() = %q, want %q", got, "search=phones")
	}

	if err := h.Replace("search=phones&page=2"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if got := h.Location(); got != "search=phones&page=2" {
		t.Errorf("Location() = %q, want %q", got, "search=phones&page=2")
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after Replace", h.Len())
	}
	if len(rec.events) != 0 {
		t.Errorf("events = %v, want none for Replace", rec.events)
	}
}

func TestMemory_BackForward(t *testing.T) {
	h := NewMemory("")
	h.Push("category=books")
	h.Push("category=books&page=2")

	rec := &recorder{}
	h.Listen(rec.listen)

	steps := []struct {
		name     string
		move     func() bool
		moved    bool
		location string
	}{
		{"back", h.Back, true, "category=books"},
		{"back again", h.Back, true, ""},
		{"back at start", h.Back, false, ""},
		{"forward", h.Forward, true, "category=books"},
		{"go +1", func() bool { return h.Go(1) }, true, "category=books&page=2"},
		{"forward at end", h.Forward, false, "category=books&page=2"},
		{"go -2", func() bool { return h.Go(-2) }, true, ""},
		{"go 0", func() bool { return h.Go(0) }, false, ""},
	}

	for _, step := range steps {
		if moved := step.move(); moved != step.moved {
			t.Errorf("%s: moved = %v, want %v", step.name, moved, step.moved)
		}
		if got := h.Location(); got != step.location {
			t.Errorf("%s: Location() = %q, want %q", step.name, got, step.location)
		}
	}

	want := []string{"category=books", "", "category=books", "category=books&page=2", ""}
	if !slices.Equal(rec.events, want) {
		t.Errorf("events = %q, want %q", rec.events, want)
	}
}

func TestMemory_PushDiscardsForwardEntries(t *testing.T) {
	h := NewMemory("a=1")
	h.Push("a=2")
	h.Push("a=3")
	h.Back()
	h.Back()
	h.Push("b=1")

	want := []string{"a=1", "b=1"}
	if got := h.Entries(); !slices.Equal(got, want) {
		t.Errorf("Entries() = %q, want %q", got, want)
	}
	if h.Index() != 1 {
		t.Errorf("Index() = %d, want 1", h.Index())
	}
	if h.Forward() {
		t.Error("Forward() = true, want false after Push")
	}
}

func TestMemory_NavigateNotifies(t *testing.T) {
	h := NewMemory("")
	rec := &recorder{}
	h.Listen(rec.listen)

	h.Navigate("?search=lamp")

	if !slices.Equal(rec.events, []string{"search=lamp"}) {
		t.Errorf("events = %q, want [search=lamp]", rec.events)
	}
	if h.Len() != 2 {
		t.Errorf("Len() = %d, want 2", h.Len())
	}
}

func TestMemory_StopListening(t *testing.T) {
	h := NewMemory("")
	h.Push("page=2")

	first := &recorder{}
	second := &recorder{}
	stop, err := h.Listen(first.listen)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	h.Listen(second.listen)

	stop()
	stop()
	if n := h.listeners.count(); n != 1 {
		t.Fatalf("listener count = %d, want 1", n)
	}

	h.Back()
	if len(first.events) != 0 {
		t.Errorf("stopped listener got %v", first.events)
	}
	if len(second.events) != 1 {
		t.Errorf("active listener got %v, want one event", second.events)
	}
}
