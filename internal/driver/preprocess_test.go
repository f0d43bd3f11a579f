package driver

import (
	"reflect"
	"testing"
)

func TestKillComments(t *testing.T) {
	cases := map[string]string{
		"intros n. (* base case *) reflexivity.": "intros n.  reflexivity.",
		"(* (* nested *) still a comment *) Qed.":  " Qed.",
		`"a string (* not a comment *) literal".`:  `"a string (* not a comment *) literal".`,
	}
	for in, want := range cases {
		if got := KillComments(in); got != want {
			t.Errorf("KillComments(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKillCommentsIdempotent(t *testing.T) {
	in := "foo (* bar *) baz (* (* nested *) qux *) ."
	once := KillComments(in)
	twice := KillComments(once)
	if once != twice {
		t.Errorf("not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestPreprocessCommandSplitsCoqImport(t *testing.T) {
	got := PreprocessCommand("Require Import Coq.Arith.Arith.")
	want := []string{"Require Import Arith.Arith."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPreprocessCommandPassthrough(t *testing.T) {
	got := PreprocessCommand("intros n.")
	want := []string{"intros n."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPossiblyStartingProof(t *testing.T) {
	yes := []string{
		"Lemma foo : True.",
		"Theorem bar (n : nat) : n = n.",
		"Goal 1 = 1.",
		"Derive f SuchThat (f = 0) As eq_zero.",
		"Next Obligation.",
		"Obligation 1.",
		"Program Definition f (n : nat) : nat := n.",
	}
	for _, c := range yes {
		if !PossiblyStartingProof(c) {
			t.Errorf("expected %q to start a proof", c)
		}
	}
	no := []string{"intros n.", "reflexivity.", "Qed."}
	for _, c := range no {
		if PossiblyStartingProof(c) {
			t.Errorf("expected %q not to start a proof", c)
		}
	}
}

func TestPossiblyStartingTerm(t *testing.T) {
	yes := []string{
		"Axiom classic : forall P : Prop, P \\/ ~ P.",
		"Variable n : nat.",
		"Lemma foo : True.",
	}
	for _, c := range yes {
		if !PossiblyStartingTerm(c) {
			t.Errorf("expected %q to start a term", c)
		}
	}
	if PossiblyStartingTerm("intros n.") {
		t.Errorf("expected a tactic not to start a term")
	}
}

func TestEndingProof(t *testing.T) {
	yes := []string{"Qed.", "Defined.", "Admitted.", "Abort.", "Proof foo.", "Time Qed."}
	for _, c := range yes {
		if !EndingProof(c) {
			t.Errorf("expected %q to end a proof", c)
		}
	}
	no := []string{"Proof.", "Proof using.", "Proof with auto.", "intros n."}
	for _, c := range no {
		if EndingProof(c) {
			t.Errorf("expected %q not to end a proof", c)
		}
	}
}

func TestUpdateSMStackModuleType(t *testing.T) {
	stack, err := UpdateSMStack(nil, "Module Type T.")
	if err != nil {
		t.Fatalf("Module Type: %v", err)
	}
	if len(stack) != 1 || stack[0].Name != "T" || stack[0].IsSection {
		t.Fatalf("got %v", stack)
	}
}

func TestUpdateSMStackModuleWithRefinement(t *testing.T) {
	// A ":=" balanced by a "with" refinement still opens a scope.
	stack, err := UpdateSMStack(nil, "Module M : S with Definition t := nat.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stack) != 1 || stack[0].Name != "M" {
		t.Fatalf("got %v", stack)
	}
}

func TestClassifyStmt(t *testing.T) {
	cases := map[string]StmtClass{
		"{":                 StmtGoalOpen,
		"2: {":              StmtGoalOpen,
		"2: reflexivity.":   StmtOther,
		"}":                 StmtGoalClose,
		"Unshelve.":         StmtUnshelve,
		"Qed.":              StmtEndingProof,
		"Lemma foo : True.": StmtProofStarter,
		"reflexivity.":      StmtOther,
	}
	for cmd, want := range cases {
		if got := ClassifyStmt(cmd); got != want {
			t.Errorf("ClassifyStmt(%q) = %v, want %v", cmd, got, want)
		}
	}
}

func TestUpdateSMStackModuleAndEnd(t *testing.T) {
	stack, err := UpdateSMStack(nil, "Module M.")
	if err != nil {
		t.Fatalf("Module: %v", err)
	}
	stack, err = UpdateSMStack(stack, "Section S.")
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	if ModulePrefix(stack) != "M." {
		t.Errorf("ModulePrefix = %q, want M.", ModulePrefix(stack))
	}
	if SMPrefix(stack) != "M.S." {
		t.Errorf("SMPrefix = %q, want M.S.", SMPrefix(stack))
	}
	stack, err = UpdateSMStack(stack, "End S.")
	if err != nil {
		t.Fatalf("End S: %v", err)
	}
	if len(stack) != 1 {
		t.Fatalf("expected 1 entry after End S, got %v", stack)
	}
	stack, err = UpdateSMStack(stack, "End M.")
	if err != nil {
		t.Fatalf("End M: %v", err)
	}
	if len(stack) != 0 {
		t.Fatalf("expected empty stack, got %v", stack)
	}
}

func TestUpdateSMStackEndMismatch(t *testing.T) {
	stack, _ := UpdateSMStack(nil, "Module M.")
	if _, err := UpdateSMStack(stack, "End N."); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestUpdateSMStackModuleAlias(t *testing.T) {
	// "Module Foo := Bar." applies an existing module; it does not open a
	// new scope.
	stack, err := UpdateSMStack(nil, "Module Foo := Bar.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stack) != 0 {
		t.Errorf("expected no scope pushed, got %v", stack)
	}
}

func TestModulePrefixDistributesOverOpenClose(t *testing.T) {
	stack, _ := UpdateSMStack(nil, "Module M.")
	before := ModulePrefix(stack)
	stack, _ = UpdateSMStack(stack, "Module N.")
	stack, _ = UpdateSMStack(stack, "End N.")
	after := ModulePrefix(stack)
	if before != after {
		t.Errorf("module_prefix not distributive: before=%q after=%q", before, after)
	}
}

func TestExtractLemmaStatementsNormal(t *testing.T) {
	got := ExtractLemmaStatements("Lemma add_comm (n m : nat) : n + m = m + n.", "")
	want := []string{"add_comm : forall n m : nat, n + m = m + n"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractLemmaStatementsGoal(t *testing.T) {
	got := ExtractLemmaStatements("Goal 1 = 1.", "")
	want := []string{": 1 = 1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractLemmaStatementsInductive(t *testing.T) {
	got := ExtractLemmaStatements("Inductive bool : Set := | true : bool | false : bool.", "")
	want := []string{"true : bool", "false : bool"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractLemmaStatementsMorphism(t *testing.T) {
	got := ExtractLemmaStatements("Add Parametric Morphism : f with signature eq ==> eq as f_mor.", "")
	want := []string{"f_mor : eq ==> eq"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractLemmaStatementsDerive(t *testing.T) {
	got := ExtractLemmaStatements("Derive f SuchThat (f = 0) As eq_zero.", "")
	want := []string{"eq_zero : (f = 0)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractLemmaStatementsObligation(t *testing.T) {
	got := ExtractLemmaStatements("Obligation 1.", "")
	want := []string{":"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
