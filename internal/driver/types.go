// Package driver implements a session with an interactive sertop subprocess:
// a framed pipe transport, a message classifier, a mirror of the prover's
// proof state, and the cancel/recovery protocol that keeps the mirror
// consistent across failures.
package driver

import "fmt"

// StateId is the opaque, monotonically increasing state identifier sertop
// assigns to every Added sentence. Not meaningful across a reset.
type StateId int

// AST carries both serializations of a prover term: the raw S-expression
// sertop returned, and the human-readable string obtained via a Print
// round-trip. Query callers need the former (to feed back into further
// queries) and the latter (to show or diff).
type AST struct {
	Sexp   string
	Pretty string
}

// Hypothesis is one "names : type [:= body]" line from a goal's context.
// Names is never empty; Coq lets several names share a single type, e.g.
// "n m : nat".
type Hypothesis struct {
	Names []string
	Body  *AST // nil when the hypothesis has no definition
	Type  AST
}

// Obligation is a single goal: the hypotheses in scope plus the goal term.
type Obligation struct {
	Hypotheses []Hypothesis
	Goal       AST
}

// ProofContext mirrors sertop's Goals/EGoals response. Fg[0], when present,
// is the focused goal.
type ProofContext struct {
	Fg      []Obligation
	Bg      []Obligation
	Shelved []Obligation
	GivenUp []Obligation
}

// AllGoals concatenates every obligation, focused first. Used by callers
// that only care whether any goal remains.
func (pc *ProofContext) AllGoals() []Obligation {
	if pc == nil {
		return nil
	}
	out := make([]Obligation, 0, len(pc.Fg)+len(pc.Bg)+len(pc.Shelved)+len(pc.GivenUp))
	out = append(out, pc.Fg...)
	out = append(out, pc.Bg...)
	out = append(out, pc.Shelved...)
	out = append(out, pc.GivenUp...)
	return out
}

func (o Obligation) String() string {
	return fmt.Sprintf("%d hyps |- %s", len(o.Hypotheses), o.Goal.Pretty)
}
