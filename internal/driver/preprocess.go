package driver

import (
	"regexp"
	"strings"
)

// KillComments strips every (* ... *) comment from cmd, tracking nesting
// depth and quote state so a "*)" inside a string literal or a nested
// comment doesn't terminate early. Idempotent: KillComments(KillComments(x))
// == KillComments(x).
func KillComments(cmd string) string {
	var sb strings.Builder
	depth := 0
	inQuote := false
	i := 0
	for i < len(cmd) {
		c := cmd[i]
		if !inQuote && c == '(' && i+1 < len(cmd) && cmd[i+1] == '*' {
			depth++
			i += 2
			continue
		}
		if depth > 0 && !inQuote && c == '*' && i+1 < len(cmd) && cmd[i+1] == ')' {
			depth--
			i += 2
			continue
		}
		if depth > 0 {
			if c == '"' {
				inQuote = !inQuote
			}
			i++
			continue
		}
		if c == '"' {
			inQuote = !inQuote
		}
		if c == '\\' && inQuote && i+1 < len(cmd) {
			sb.WriteByte(c)
			sb.WriteByte(cmd[i+1])
			i += 2
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String()
}

// PreprocessCommand performs the one known statement split: a
// "Require Import Coq.X[.Y...]" is rewritten to "Require Import X[.Y...]"
// since sertop's module resolution does not want the leading "Coq." prefix.
// Every other statement passes through unchanged as a single-element slice.
func PreprocessCommand(cmd string) []string {
	const prefix = "Require Import Coq."
	trimmed := strings.TrimSpace(cmd)
	if strings.HasPrefix(trimmed, prefix) {
		rest := trimmed[len(prefix):]
		return []string{"Require Import " + rest}
	}
	return []string{cmd}
}

var normalLemmaStartingPatterns = []string{
	"Lemma", "Theorem", "Remark", "Proposition", "Corollary",
	"Fact", "Property", "Definition", "Example", "Let",
	"Instance", "Fixpoint", "CoFixpoint", "Function", "Coercion",
}

var specialLemmaStartingPatterns = []string{
	"Goal",
	"Derive",
	"Next Obligation",
	"Add Parametric Morphism",
	"Add Morphism",
}

var otherStartingPatterns = []string{
	"Program",
	"Equations",
	"Functional",
	"Inductive",
}

var assumptionsStartingPatterns = []string{
	"Axiom", "Conjecture", "Parameter", "Parameters", "Variable", "Variables", "Hypothesis",
}

var reObligationStarter = regexp.MustCompile(`^\s*Obligation\s+\d+\s*\.`)
var reLemmaStarters *regexp.Regexp

func init() {
	all := append([]string{}, normalLemmaStartingPatterns...)
	all = append(all, specialLemmaStartingPatterns...)
	all = append(all, otherStartingPatterns...)
	var quoted []string
	for _, p := range all {
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	reLemmaStarters = regexp.MustCompile(`^\s*(?:Local\s+|Global\s+)?(?:Program\s+|Polymorphic\s+)*(` + strings.Join(quoted, "|") + `)\b`)
}

// PossiblyStartingProof reports whether cmd opens a new lemma/definition
// whose proof obligation the mirror must start tracking.
func PossiblyStartingProof(cmd string) bool {
	trimmed := strings.TrimSpace(cmd)
	if reLemmaStarters.MatchString(trimmed) {
		return true
	}
	return reObligationStarter.MatchString(trimmed)
}

var reAssumptionStarters *regexp.Regexp

func init() {
	var quoted []string
	for _, p := range assumptionsStartingPatterns {
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	reAssumptionStarters = regexp.MustCompile(`^\s*(?:Local\s+|Global\s+)?(` + strings.Join(quoted, "|") + `)\b`)
}

// PossiblyStartingTerm reports whether cmd introduces a new term: a proof
// starter or an assumption declaration (Axiom, Parameter, Variable, ...).
func PossiblyStartingTerm(cmd string) bool {
	return PossiblyStartingProof(cmd) || reAssumptionStarters.MatchString(strings.TrimSpace(cmd))
}

var reProofTerm = regexp.MustCompile(`^\s*Proof\s+(?:with|using)\b`)
var reProofWithTerm = regexp.MustCompile(`^\s*Proof\s+\S`)

// EndingProof reports whether cmd closes the currently open proof. "Proof
// <term>." ends the proof immediately unless the term is a "with"/"using"
// qualifier.
func EndingProof(cmd string) bool {
	trimmed := strings.TrimSpace(cmd)
	for _, kw := range []string{"Qed.", "Defined.", "Admitted.", "Abort.", "Save"} {
		if strings.Contains(trimmed, kw) {
			return true
		}
	}
	return reProofWithTerm.MatchString(trimmed) && !reProofTerm.MatchString(trimmed)
}

var (
	// A focus is a brace, optionally preceded by a goal selector
	// ("2: {"). A bare selector tactic ("2: auto.") keeps the focus it
	// had and is not a frame open.
	reGoalOpen  = regexp.MustCompile(`^\s*(?:\d+\s*:)?\s*\{`)
	reGoalClose = regexp.MustCompile(`^\s*\}`)
	reUnshelve  = regexp.MustCompile(`^\s*Unshelve\b`)
)

// StmtClass is the 4.D step-5 classification of an accepted statement.
type StmtClass int

const (
	StmtOther StmtClass = iota
	StmtGoalOpen
	StmtGoalClose
	StmtUnshelve
	StmtProofStarter
	StmtEndingProof
)

// ClassifyStmt determines how a just-executed statement should update the
// mirror, independent of whether the prover accepted it.
func ClassifyStmt(cmd string) StmtClass {
	switch {
	case reGoalClose.MatchString(cmd):
		return StmtGoalClose
	case reUnshelve.MatchString(cmd):
		return StmtUnshelve
	case reGoalOpen.MatchString(cmd):
		return StmtGoalOpen
	case EndingProof(cmd):
		return StmtEndingProof
	case PossiblyStartingProof(cmd):
		return StmtProofStarter
	default:
		return StmtOther
	}
}

// --- module/section stack -------------------------------------------------

// SMEntry is one entry of the module/section stack.
type SMEntry struct {
	Name      string
	IsSection bool
}

var (
	reModule = regexp.MustCompile(`^\s*Module\s+(?:(?:Import|Export)\s+)?(?:Type\s+)?([\w']+)`)
	reSecton = regexp.MustCompile(`^\s*Section\s+([\w']+)`)
	reEnd    = regexp.MustCompile(`^\s*End\s+([\w']+)\s*\.`)
)

// UpdateSMStack applies one statement's effect on the module/section stack,
// returning the updated stack. It is an error to End a name that doesn't
// match the top of the stack.
func UpdateSMStack(stack []SMEntry, cmd string) ([]SMEntry, error) {
	trimmed := strings.TrimSpace(KillComments(cmd))
	if m := reModule.FindStringSubmatch(trimmed); m != nil {
		// "Module Foo := Bar." applies an existing module rather than
		// opening a scope, unless every ":=" is part of a "with"
		// refinement.
		if strings.Count(trimmed, ":=") <= strings.Count(trimmed, "with") {
			return append(append([]SMEntry{}, stack...), SMEntry{Name: m[1], IsSection: false}), nil
		}
		return stack, nil
	}
	if m := reSecton.FindStringSubmatch(trimmed); m != nil && !strings.Contains(trimmed, ":=") {
		return append(append([]SMEntry{}, stack...), SMEntry{Name: m[1], IsSection: true}), nil
	}
	if m := reEnd.FindStringSubmatch(trimmed); m != nil {
		if len(stack) == 0 || stack[len(stack)-1].Name != m[1] {
			return nil, &DriverError{Kind: ErrParse, Stmt: cmd, Payload: "End " + m[1] + " does not match top of module/section stack"}
		}
		return stack[:len(stack)-1], nil
	}
	return stack, nil
}

// ModulePrefix is the dotted join of non-section names on the stack.
func ModulePrefix(stack []SMEntry) string {
	var parts []string
	for _, e := range stack {
		if !e.IsSection {
			parts = append(parts, e.Name)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ".") + "."
}

// SMPrefix joins every entry on the stack, sections included.
func SMPrefix(stack []SMEntry) string {
	var parts []string
	for _, e := range stack {
		parts = append(parts, e.Name)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ".") + "."
}

// --- lemma statement extraction --------------------------------------------

var (
	reNormalLemma = regexp.MustCompile(`(?s)^\s*(?:Local\s+|Global\s+)?(?:Program\s+|Polymorphic\s+)*(?:` +
		strings.Join(quoteAll(normalLemmaStartingPatterns), "|") +
		`)\s+(\w+)\s*(.*?)\s*:\s*(.+?)\s*\.\s*$`)
	reGoal         = regexp.MustCompile(`(?s)^\s*Goal\s+(.+?)\s*\.\s*$`)
	reMorphism     = regexp.MustCompile(`(?s)^\s*Add\s+(?:Parametric\s+)?Morphism\s+.*?\bwith\s+signature\s+(.+?)\s+as\s+(\w+)\s*\.\s*$`)
	reDerive       = regexp.MustCompile(`(?s)^\s*Derive\s+\w+\s+SuchThat\s+(.+?)\s+As\s+(\w+)\s*\.\s*$`)
	reInductive    = regexp.MustCompile(`(?s)^\s*Inductive\s+\w+\s*:.*?:=\s*(.+?)\s*\.\s*$`)
	reConstructor  = regexp.MustCompile(`\|\s*(\w+)\s*:\s*([^|]+)`)
	reObligation   = regexp.MustCompile(`^\s*(?:Next\s+)?Obligation(?:\s+\d+)?\s*\.`)
)

func quoteAll(xs []string) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = regexp.QuoteMeta(x)
	}
	return out
}

// ExtractLemmaStatements returns the fully-qualified "name : statement"
// entries a proof-starting command introduces.
func ExtractLemmaStatements(cmd string, prefix string) []string {
	trimmed := strings.TrimSpace(cmd)

	if reObligation.MatchString(trimmed) {
		return []string{":"}
	}
	if m := reMorphism.FindStringSubmatch(trimmed); m != nil {
		return []string{prefix + m[2] + " : " + m[1]}
	}
	if m := reDerive.FindStringSubmatch(trimmed); m != nil {
		return []string{prefix + m[2] + " : " + m[1]}
	}
	if m := reInductive.FindStringSubmatch(trimmed); m != nil {
		var out []string
		for _, c := range reConstructor.FindAllStringSubmatch("| "+m[1], -1) {
			out = append(out, prefix+c[1]+" : "+strings.TrimSpace(c[2]))
		}
		return out
	}
	if m := reNormalLemma.FindStringSubmatch(trimmed); m != nil {
		// The regex stops at the first ':', which may sit inside a typed
		// binder group; split instead at the first ':' outside brackets.
		name, rest, split := m[1], m[2]+" : "+m[3], len(m[2])+1
		for i := range rest {
			pre := rest[:i]
			if rest[i] == ':' && strings.Count(pre, "(")+strings.Count(pre, "{") == strings.Count(pre, ")")+strings.Count(pre, "}") {
				split = i
				break
			}
		}
		binders, body := strings.TrimSpace(rest[:split]), strings.TrimSpace(rest[split+1:])
		if binders == "" {
			return []string{prefix + name + " : " + body}
		}
		if strings.HasPrefix(binders, "(") && strings.HasSuffix(binders, ")") && strings.Count(binders, "(") == 1 {
			binders = binders[1 : len(binders)-1]
		}
		return []string{prefix + name + " : forall " + binders + ", " + body}
	}
	if m := reGoal.FindStringSubmatch(trimmed); m != nil {
		return []string{": " + m[1]}
	}
	return nil
}
