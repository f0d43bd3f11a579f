package driver

import "testing"

func TestTacticHistoryAddAndRemoveLast(t *testing.T) {
	h := NewTacticHistory()
	if !h.Empty() {
		t.Fatalf("expected fresh history to be empty")
	}
	h.AddTactic("intros n.", 1)
	h.AddTactic("reflexivity.", 2)
	if got := h.GetCurrentHistory(); len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	h.RemoveLast(nil)
	if got := h.GetCurrentHistory(); len(got) != 1 || got[0] != "intros n." {
		t.Fatalf("got %v", got)
	}
}

func TestTacticHistoryOpenCloseSubgoal(t *testing.T) {
	h := NewTacticHistory()
	h.AddTactic("split.", 1)
	bgBefore := []Obligation{{Goal: AST{Pretty: "goal2"}}}
	h.OpenSubgoal(bgBefore)
	if h.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", h.Depth())
	}
	h.AddTactic("exact I.", 2)
	bg := h.CloseSubgoal()
	if h.Depth() != 0 {
		t.Fatalf("expected depth 0 after close, got %d", h.Depth())
	}
	if len(bg) != 1 || bg[0].Goal.Pretty != "goal2" {
		t.Fatalf("got %v", bg)
	}
}

func TestTacticHistoryRemoveLastReentersNestedFrame(t *testing.T) {
	h := NewTacticHistory()
	h.OpenSubgoal(nil)
	h.AddTactic("exact I.", 1)
	h.CloseSubgoal()
	// Undo the close: re-enter the nested frame.
	h.RemoveLast([]Obligation{{Goal: AST{Pretty: "g"}}})
	if h.Depth() != 1 {
		t.Fatalf("expected depth 1 after undoing close, got %d", h.Depth())
	}
}

func TestLocalLemmaRegistry(t *testing.T) {
	r := NewLocalLemmaRegistry()
	r.Register("foo : True", false)
	r.Register("bar : True", true)
	if len(r.Entries()) != 2 {
		t.Fatalf("got %v", r.Entries())
	}
	r.RemoveSectionScoped()
	if len(r.Entries()) != 1 || r.Entries()[0].Statement != "foo : True" {
		t.Fatalf("got %v", r.Entries())
	}
	r.Register("baz : True", false)
	r.RemoveByName("baz")
	if len(r.Entries()) != 1 {
		t.Fatalf("got %v", r.Entries())
	}
}

func TestLocalLemmaRegistryPopLast(t *testing.T) {
	r := NewLocalLemmaRegistry()
	r.Register("a : True", false)
	r.Register("b : True", false)
	r.PopLast()
	if len(r.Entries()) != 1 || r.Entries()[0].Statement != "a : True" {
		t.Fatalf("got %v", r.Entries())
	}
}

func TestLocalLemmaRegistryUnregister(t *testing.T) {
	r := NewLocalLemmaRegistry()
	r.Register("a : True", false)
	r.Register("b : True", false)
	r.Unregister("a : True", false)
	if len(r.Entries()) != 1 || r.Entries()[0].Statement != "b : True" {
		t.Fatalf("got %v", r.Entries())
	}
	// Mismatched section flag leaves the entry alone.
	r.Unregister("b : True", true)
	if len(r.Entries()) != 1 {
		t.Fatalf("got %v", r.Entries())
	}
}

func TestTacticHistoryLastTactic(t *testing.T) {
	h := NewTacticHistory()
	if _, _, ok := h.LastTactic(); ok {
		t.Fatalf("expected no last tactic in fresh history")
	}
	h.AddTactic("intros.", 4)
	text, sid, ok := h.LastTactic()
	if !ok || text != "intros." || sid != 4 {
		t.Fatalf("got %q %d %v", text, sid, ok)
	}
	h.OpenSubgoal(nil)
	if _, _, ok := h.LastTactic(); ok {
		t.Fatalf("expected no last tactic at the top of a fresh frame")
	}
}

func TestCommandHistoryBeginMarkTrim(t *testing.T) {
	h := NewCommandHistory()
	h.Begin("foo.")
	h.MarkLastAccepted(3)
	h.Begin("bar.")
	h.TrimLastIfRejected()
	if got := h.Accepted(); len(got) != 1 || got[0] != "foo." {
		t.Fatalf("got %v", got)
	}
	last, ok := h.Last()
	if !ok || !last.Accepted || last.StateId != 3 {
		t.Fatalf("got %+v, %v", last, ok)
	}
	// TrimLastIfRejected must not drop an accepted entry.
	h.TrimLastIfRejected()
	if h.Len() != 1 {
		t.Fatalf("accepted entry was trimmed")
	}
}

func TestCommandHistoryTrimAndReplay(t *testing.T) {
	h := NewCommandHistory()
	h.Append("foo.", true, 1)
	h.Append("bar.", true, 2)
	h.Append("baz.", false, 2)
	if got := h.Accepted(); len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	h.TrimTail(2)
	if got := h.Accepted(); len(got) != 1 || got[0] != "foo." {
		t.Fatalf("got %v", got)
	}
	last, ok := h.LastAccepted()
	if !ok || last.StateId != 1 {
		t.Fatalf("got %+v, %v", last, ok)
	}
}
