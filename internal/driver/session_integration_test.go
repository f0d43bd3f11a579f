package driver

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func testdataPath(file string) string {
	abs, _ := filepath.Abs(filepath.Join("..", "..", "testdata", file))
	return abs
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	if _, err := exec.LookPath("sertop"); err != nil {
		t.Skip("sertop not installed")
	}
	cfg := DefaultConfig()
	cfg.ProjectPath = os.TempDir()
	cfg.Timeout = 10 * time.Second
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Kill() })
	return s
}

func TestSessionOpenAndProveSimpleLemma(t *testing.T) {
	s := newTestSession(t)

	contents, err := os.ReadFile(testdataPath("simple.v"))
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range SplitSentences(string(contents)) {
		if err := s.RunStmt(stmt); err != nil {
			t.Fatalf("RunStmt(%q): %v", stmt, err)
		}
	}
	if s.ProofContext() != nil {
		t.Errorf("expected nil proof context after Qed, got %+v", s.ProofContext())
	}
	if got := s.LocalLemmas(); len(got) != 1 {
		t.Errorf("expected one registered lemma, got %v", got)
	}
}

func TestSessionCancelAfterTacticFailure(t *testing.T) {
	s := newTestSession(t)

	for _, stmt := range []string{"Lemma trivial_eq : 0 = 0.", "Proof."} {
		if err := s.RunStmt(stmt); err != nil {
			t.Fatalf("RunStmt(%q): %v", stmt, err)
		}
	}
	tacticsBefore := s.PrevTactics()

	err := s.RunStmt("apply nonsense_lemma_name.")
	if err == nil {
		t.Fatalf("expected an error from an unknown lemma")
	}
	if pc := s.ProofContext(); pc == nil || len(pc.Fg) != 1 {
		t.Errorf("cancel_failed did not keep the proof context: %+v", pc)
	}
	if got := s.PrevTactics(); len(got) != len(tacticsBefore) {
		t.Errorf("tactic history drifted after failure: %v, want %v", got, tacticsBefore)
	}

	if err := s.RunStmt("reflexivity."); err != nil {
		t.Fatalf("expected recovery to allow a subsequent reflexivity: %v", err)
	}
}

func TestSessionBraceFocus(t *testing.T) {
	s := newTestSession(t)

	run := func(stmt string) {
		t.Helper()
		if err := s.RunStmt(stmt); err != nil {
			t.Fatalf("RunStmt(%q): %v", stmt, err)
		}
	}
	fgBg := func(wantFg, wantBg int) {
		t.Helper()
		pc := s.ProofContext()
		if pc == nil {
			t.Fatalf("expected to be in a proof")
		}
		if len(pc.Fg) != wantFg || len(pc.Bg) != wantBg {
			t.Fatalf("got fg=%d bg=%d, want fg=%d bg=%d", len(pc.Fg), len(pc.Bg), wantFg, wantBg)
		}
	}

	run("Lemma conj_true : True /\\ True.")
	run("Proof.")
	run("split.")
	fgBg(2, 0)
	run("{")
	fgBg(1, 1)
	run("exact I.")
	fgBg(0, 1)
	run("}")
	fgBg(1, 0)
	run("exact I.")
	fgBg(0, 0)
	run("Qed.")
	if s.ProofContext() != nil {
		t.Fatalf("expected nil proof context after Qed")
	}
	found := false
	for _, e := range s.LocalLemmas() {
		if e.Statement == "conj_true : True /\\ True" {
			found = true
		}
	}
	if !found {
		t.Errorf("registry missing the proved lemma: %v", s.LocalLemmas())
	}
}

func TestSessionCancelRoundTrip(t *testing.T) {
	s := newTestSession(t)

	for _, stmt := range []string{"Lemma rt : 0 = 0.", "Proof."} {
		if err := s.RunStmt(stmt); err != nil {
			t.Fatalf("RunStmt(%q): %v", stmt, err)
		}
	}
	tacticsBefore := s.PrevTactics()
	fgBefore := len(s.ProofContext().Fg)

	if err := s.RunStmt("reflexivity."); err != nil {
		t.Fatalf("RunStmt: %v", err)
	}
	if err := s.CancelLast(); err != nil {
		t.Fatalf("CancelLast: %v", err)
	}
	if got := len(s.ProofContext().Fg); got != fgBefore {
		t.Errorf("fg count %d after round trip, want %d", got, fgBefore)
	}
	if got := s.PrevTactics(); len(got) != len(tacticsBefore) {
		t.Errorf("tactic history %v after round trip, want %v", got, tacticsBefore)
	}
}

func TestSessionResetAndReplay(t *testing.T) {
	s := newTestSession(t)

	for _, stmt := range []string{
		"Lemma replay_ok : forall n : nat, n = n.",
		"Proof.",
		"intros n.",
	} {
		if err := s.RunStmt(stmt); err != nil {
			t.Fatalf("RunStmt(%q): %v", stmt, err)
		}
	}
	before := s.ProofContext()

	if err := s.fullReset(); err != nil {
		t.Fatalf("fullReset: %v", err)
	}
	if s.ResetCount() != 1 {
		t.Errorf("expected ResetCount 1, got %d", s.ResetCount())
	}
	after := s.ProofContext()
	if before == nil || after == nil || len(before.Fg) != len(after.Fg) {
		t.Errorf("proof context not restored by replay: before=%+v after=%+v", before, after)
	}
}
