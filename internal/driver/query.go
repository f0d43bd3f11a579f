package driver

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sanjit/coq-serapy/internal/sexp"
)

// refreshProofContext issues the Goals (or EGoals, per KernelLevelTerms)
// query and reparses the response into the mirror's ProofContext shape.
// sertop answers (ObjList ()) outside a proof, which maps to a nil context,
// and (ObjList ((CoqGoal ((goals ...) (stack ...) (shelf ...) (given_up ...)
// (bullet ...))))) inside one. When updateNonFg is false the background and
// given-up buckets are carried over from the previous context instead of
// being reparsed, which skips their Print round-trips on the common path
// where a tactic only touches the focused goals.
func (s *Session) refreshProofContext(updateNonFg bool) (*ProofContext, error) {
	query, tag := "EGoals", "CoqExtGoal"
	if s.cfg.KernelLevelTerms {
		query, tag = "Goals", "CoqGoal"
	}
	primary, err := s.queryRaw(fmt.Sprintf("(Query () %s)", query))
	if err != nil {
		return nil, err
	}
	if primary.Kind != MsgObjList {
		return nil, &DriverError{Kind: ErrBadResponse, Payload: primary.Raw.String()}
	}
	if len(primary.Raw.Items) < 2 || len(primary.Raw.Items[1].Items) == 0 {
		return nil, nil // (ObjList ()): not inside a proof
	}
	goal := primary.Raw.Items[1].Items[0]
	if !goal.HeadIs(tag) && !goal.HeadIs("CoqGoal") || len(goal.Items) < 2 {
		return nil, &DriverError{Kind: ErrBadResponse, Payload: goal.String()}
	}

	pc := &ProofContext{}
	for _, field := range goal.Items[1].Items {
		if field.Kind != sexp.ListKind || len(field.Items) < 2 {
			continue
		}
		switch {
		case field.HeadIs("goals"):
			pc.Fg, err = s.splitAndParseGoals(field.Items[1])
		case field.HeadIs("stack"):
			if updateNonFg {
				pc.Bg, err = s.parseBgStack(field.Items[1])
			}
		case field.HeadIs("shelf"):
			pc.Shelved, err = s.splitAndParseGoals(field.Items[1])
		case field.HeadIs("given_up"):
			if updateNonFg {
				pc.GivenUp, err = s.splitAndParseGoals(field.Items[1])
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if !updateNonFg && s.proofCtx != nil {
		pc.Bg = s.proofCtx.Bg
		pc.GivenUp = s.proofCtx.GivenUp
	}
	return pc, nil
}

// parseBgStack flattens the stack region: a list of focus frames, each a
// pair of goal lists (the goals before and after the focused range).
func (s *Session) parseBgStack(stack sexp.Node) ([]Obligation, error) {
	var out []Obligation
	for _, frame := range stack.Items {
		for _, side := range frame.Items {
			goals, err := s.splitAndParseGoals(side)
			if err != nil {
				return nil, err
			}
			out = append(out, goals...)
		}
	}
	return out, nil
}

// splitAndParseGoals slices a goal-list region with the single-level
// splitter, then parses each element on its own; the whole Goals payload is
// never descended into at once.
func (s *Session) splitAndParseGoals(list sexp.Node) ([]Obligation, error) {
	texts, err := sexp.SplitTopLevel(list.String())
	if err != nil {
		return nil, nil
	}
	out := make([]Obligation, 0, len(texts))
	for _, t := range texts {
		n, err := sexp.Parse(t)
		if err != nil {
			continue
		}
		ob, err := s.parseOneGoal(n)
		if err != nil {
			return nil, err
		}
		out = append(out, ob)
	}
	return out, nil
}

// parseOneGoal handles ((info ((evar ...) (name ...))) (ty <sexpr>)
// (hyp <hyps>)); the info block is ignored.
func (s *Session) parseOneGoal(n sexp.Node) (Obligation, error) {
	var ob Obligation
	for _, field := range n.Items {
		if field.Kind != sexp.ListKind || len(field.Items) < 2 {
			continue
		}
		switch {
		case field.HeadIs("ty"):
			pretty, err := s.prettyPrint(field.Items[1])
			if err != nil {
				return ob, err
			}
			ob.Goal = AST{Sexp: field.Items[1].String(), Pretty: pretty}
		case field.HeadIs("hyp"):
			hyps, err := s.parseHypotheses(field.Items[1])
			if err != nil {
				return ob, err
			}
			ob.Hypotheses = hyps
		}
	}
	return ob, nil
}

func (s *Session) parseHypotheses(list sexp.Node) ([]Hypothesis, error) {
	texts, err := sexp.SplitTopLevel(list.String())
	if err != nil {
		return nil, nil
	}
	out := make([]Hypothesis, 0, len(texts))
	for _, t := range texts {
		n, err := sexp.Parse(t)
		if err != nil {
			continue
		}
		h, err := s.parseOneHypothesis(n)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// parseOneHypothesis handles the positional triple (((Id x) (Id y) ...)
// (<body?>) <type>): the identifiers sharing this type, an optional
// definition body, and the type term.
func (s *Session) parseOneHypothesis(n sexp.Node) (Hypothesis, error) {
	var h Hypothesis
	if n.Kind != sexp.ListKind || len(n.Items) != 3 {
		return h, &DriverError{Kind: ErrBadResponse, Payload: n.String()}
	}
	for _, idPair := range n.Items[0].Items {
		if idPair.HeadIs("Id") && len(idPair.Items) >= 2 {
			h.Names = append(h.Names, idPair.Items[1].Atom)
		}
	}
	if body := n.Items[1]; len(body.Items) > 0 {
		pretty, err := s.prettyPrint(body.Items[0])
		if err != nil {
			return h, err
		}
		h.Body = &AST{Sexp: body.Items[0].String(), Pretty: pretty}
	}
	pretty, err := s.prettyPrint(n.Items[2])
	if err != nil {
		return h, err
	}
	h.Type = AST{Sexp: n.Items[2].String(), Pretty: pretty}
	return h, nil
}

// prettyPrint asks sertop to render a term S-expression as text via a Print
// round trip, memoized on the canonical S-expression string.
func (s *Session) prettyPrint(term sexp.Node) (string, error) {
	tag := "CoqExpr"
	if s.cfg.KernelLevelTerms {
		tag = "CoqConstr"
	}
	return s.printTerm(tag, term.String())
}

func (s *Session) printTerm(tag, termSexp string) (string, error) {
	key := tag + "\x00" + termSexp
	if s.termCache != nil {
		if v, ok := s.termCache.Get(key); ok {
			return v, nil
		}
	}
	sentence := fmt.Sprintf(`(Print ((pp ((pp_format PpStr)))) (%s %s))`, tag, termSexp)
	primary, err := s.queryRaw(sentence)
	if err != nil {
		return "", err
	}
	pretty := extractObjListString(primary.Raw)
	if s.termCache != nil {
		s.termCache.Add(key, pretty)
	}
	return pretty, nil
}

func extractObjListString(objList sexp.Node) string {
	if len(objList.Items) < 2 {
		return ""
	}
	for _, item := range objList.Items[1].Items {
		if item.HeadIs("CoqString") && len(item.Items) >= 2 {
			return item.Items[1].Atom
		}
	}
	return ""
}

func newTermCache() *lru.Cache[string, string] {
	c, _ := lru.New[string, string](128)
	return c
}

// --- public query surface ---------------------------------------------------

// Check returns the prover's "name : type" line for a term in surface
// syntax, read from the Notice message a Vernac Check emits.
func (s *Session) Check(term string) (string, error) {
	sentence := fmt.Sprintf(`(Query () (Vernac "Check %s."))`, sexp.Escape(term))
	primary, feedbacks, err := s.transact(sentence)
	if err != nil {
		return "", err
	}
	if primary.Kind == MsgExn {
		return "", s.handleExn(sentence, primary)
	}
	for _, fb := range feedbacks {
		if fb.FeedbackKind != "Message" {
			continue
		}
		if leaves := collectStrLeaves(fb.Raw, 30); len(leaves) > 0 {
			return leaves[0], nil
		}
	}
	return "", &DriverError{Kind: ErrBadResponse, Payload: "Check produced no message"}
}

// Locate resolves qid to its canonical fully qualified identifier; an
// unknown id resolves to itself, matching the prover's own fallback. When
// the id is rooted at the synthetic top-level module it is retried once
// with that prefix stripped.
func (s *Session) Locate(qid string) (string, error) {
	const topLevel = "SerTop."
	resolved, found, err := s.locateOnce(qid)
	if err != nil {
		return "", err
	}
	if !found && strings.HasPrefix(qid, topLevel) {
		stripped := strings.TrimPrefix(qid, topLevel)
		resolved, found, err = s.locateOnce(stripped)
		if err != nil {
			return "", err
		}
		if !found {
			return stripped, nil
		}
	}
	if !found {
		return qid, nil
	}
	return resolved, nil
}

// locateOnce runs one Locate query and reassembles the short identifier
// from the DirPath segments (stored innermost-first) plus the final Id.
func (s *Session) locateOnce(qid string) (string, bool, error) {
	sentence := fmt.Sprintf(`(Query () (Locate "%s"))`, sexp.Escape(qid))
	primary, err := s.queryRaw(sentence)
	if err != nil {
		return "", false, err
	}
	if len(primary.Raw.Items) < 2 || len(primary.Raw.Items[1].Items) == 0 {
		return "", false, nil
	}
	obj := primary.Raw.Items[1].Items[0]
	qualid := findHead(obj, "Ser_Qualid", 8)
	if qualid == nil || len(qualid.Items) < 3 {
		return obj.String(), true, nil
	}
	var parts []string
	if dp := qualid.Items[1]; dp.HeadIs("DirPath") && len(dp.Items) >= 2 {
		segs := dp.Items[1].Items
		for i := len(segs) - 1; i >= 0; i-- {
			if segs[i].HeadIs("Id") && len(segs[i].Items) >= 2 {
				parts = append(parts, segs[i].Items[1].Atom)
			}
		}
	}
	if id := qualid.Items[2]; id.HeadIs("Id") && len(id.Items) >= 2 {
		parts = append(parts, id.Items[1].Atom)
	}
	if len(parts) == 0 {
		return obj.String(), true, nil
	}
	return strings.Join(parts, "."), true, nil
}

// findHead does a bounded-depth search for the first list node headed by
// name.
func findHead(n sexp.Node, name string, depth int) *sexp.Node {
	if depth <= 0 || n.Kind != sexp.ListKind {
		return nil
	}
	if n.HeadIs(name) {
		return &n
	}
	for _, child := range n.Items {
		if found := findHead(child, name, depth-1); found != nil {
			return found
		}
	}
	return nil
}

// Definition returns the raw S-expression body of name's definition.
func (s *Session) Definition(name string) (string, error) {
	sentence := fmt.Sprintf(`(Query () (Definition "%s"))`, sexp.Escape(name))
	primary, err := s.queryRaw(sentence)
	if err != nil {
		return "", err
	}
	return primary.Raw.String(), nil
}

// Assumptions returns the raw S-expression list of axioms name's proof term
// depends on.
func (s *Session) Assumptions(name string) (string, error) {
	sentence := fmt.Sprintf(`(Query () (Assumptions "%s"))`, sexp.Escape(name))
	primary, err := s.queryRaw(sentence)
	if err != nil {
		return "", err
	}
	return primary.Raw.String(), nil
}

// Search runs pattern through the prover's Search and returns up to 10
// Notice-level message lines, each pretty-printed.
func (s *Session) Search(pattern string) ([]string, error) {
	sentence := fmt.Sprintf(`(Query () (Vernac "Search %s."))`, sexp.Escape(pattern))
	primary, feedbacks, err := s.transact(sentence)
	if err != nil {
		return nil, err
	}
	if primary.Kind == MsgExn {
		return nil, s.handleExn(sentence, primary)
	}
	var out []string
	for _, fb := range feedbacks {
		if fb.FeedbackKind != "Message" {
			continue
		}
		msg, pp := findHead(fb.Raw, "Message", 4), feedbackMessagePp(fb.Raw)
		if msg == nil || pp == nil || len(msg.Items) < 2 || !strings.Contains(msg.Items[1].String(), "Notice") {
			continue
		}
		text, err := s.printTerm("CoqPp", pp.String())
		if err != nil {
			return nil, err
		}
		if text = reCollapseWS.ReplaceAllString(text, " "); text != "" {
			out = append(out, text)
			if len(out) == 10 {
				break
			}
		}
	}
	return out, nil
}

// SearchAbout looks up lemmas mentioning head, a thin convenience over
// Search.
func (s *Session) SearchAbout(head string) ([]string, error) {
	return s.Search(head)
}

// LemmasAboutGoalHead looks up lemmas about the head symbol of the focused
// goal. Quantified goals have no useful head, so "forall" yields nothing.
func (s *Session) LemmasAboutGoalHead() ([]string, error) {
	if s.proofCtx == nil || len(s.proofCtx.Fg) == 0 {
		return nil, nil
	}
	head := firstWord(s.proofCtx.Fg[0].Goal.Pretty)
	if head == "" || head == "forall" {
		return nil, nil
	}
	return s.SearchAbout(head)
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t\n(")
	if i == -1 {
		return s
	}
	return s[:i]
}

// EnvEntry is one constant or inductive reported by Env.
type EnvEntry struct {
	Qualid     string
	ShortIdent string
	Type       string
}

// Env enumerates the constants and inductives currently in the global
// environment. Each entry's qualified name is rebuilt from its kernel
// module path, its short form comes from a Locate round trip, and its type
// is pretty-printed.
func (s *Session) Env() ([]EnvEntry, error) {
	primary, err := s.queryRaw("(Query () Env)")
	if err != nil {
		return nil, err
	}
	if len(primary.Raw.Items) < 2 || len(primary.Raw.Items[1].Items) == 0 {
		return nil, nil
	}
	coqEnv := primary.Raw.Items[1].Items[0]

	var out []EnvEntry
	for _, kind := range []string{"constants", "inductives"} {
		section := findHead(coqEnv, kind, 8)
		if section == nil || len(section.Items) < 2 {
			continue
		}
		for _, entry := range section.Items[1].Items {
			if entry.Kind != sexp.ListKind || len(entry.Items) < 2 {
				continue
			}
			qualid := kernelName(entry.Items[0])
			if qualid == "" {
				continue
			}
			short, err := s.Locate(qualid)
			if err != nil {
				short = qualid
			}
			var typePretty string
			if ct := findHead(entry, "const_type", 10); ct != nil && len(ct.Items) >= 2 {
				typePretty, _ = s.printTerm("CoqConstr", ct.Items[1].String())
			}
			out = append(out, EnvEntry{Qualid: qualid, ShortIdent: short, Type: typePretty})
		}
	}
	return out, nil
}

// kernelName rebuilds "Mod.Path.label" from a kernel name node: a module
// path (MPfile/MPdot/MPbound, with DirPath segments stored innermost-first)
// followed by an (Id label) or (Label label) pair.
func kernelName(n sexp.Node) string {
	if n.Kind != sexp.ListKind || len(n.Items) < 3 {
		return ""
	}
	prefix := modPathString(n.Items[1])
	label := ""
	if l := n.Items[2]; l.Kind == sexp.ListKind && len(l.Items) >= 2 {
		label = l.Items[1].Atom
	}
	if prefix == "" || label == "" {
		return ""
	}
	return prefix + "." + label
}

func modPathString(n sexp.Node) string {
	if n.Kind != sexp.ListKind || len(n.Items) == 0 {
		return ""
	}
	switch {
	case n.Items[0].IsAtom("MPdot") && len(n.Items) >= 3:
		inner := modPathString(n.Items[1])
		label := ""
		if l := n.Items[2]; l.Kind == sexp.ListKind && len(l.Items) >= 2 {
			label = l.Items[1].Atom
		}
		if inner == "" || label == "" {
			return ""
		}
		return inner + "." + label
	case n.Items[0].IsAtom("MPfile") && len(n.Items) >= 2:
		dp := n.Items[1]
		if !dp.HeadIs("DirPath") || len(dp.Items) < 2 {
			return ""
		}
		var parts []string
		segs := dp.Items[1].Items
		for i := len(segs) - 1; i >= 0; i-- {
			if len(segs[i].Items) >= 2 {
				parts = append(parts, segs[i].Items[1].Atom)
			}
		}
		return strings.Join(parts, ".")
	default:
		return ""
	}
}

var reCollapseWS = regexp.MustCompile(`\s+`)

// FullLine resolves name to its complete "name : type" line: a Vernac Check
// whose Notice message carries a Pp document, rendered via a CoqPp Print
// round trip.
func (s *Session) FullLine(name string) (string, error) {
	sentence := fmt.Sprintf(`(Query () (Vernac "Check %s."))`, sexp.Escape(name))
	primary, feedbacks, err := s.transact(sentence)
	if err != nil {
		return "", err
	}
	if primary.Kind == MsgExn {
		return "", s.handleExn(sentence, primary)
	}
	for _, fb := range feedbacks {
		if fb.FeedbackKind != "Message" {
			continue
		}
		pp := feedbackMessagePp(fb.Raw)
		if pp == nil {
			continue
		}
		line, err := s.printTerm("CoqPp", pp.String())
		if err != nil {
			return "", err
		}
		return reCollapseWS.ReplaceAllString(line, " "), nil
	}
	return "", &DriverError{Kind: ErrBadResponse, Payload: "Check produced no message for " + name}
}

// feedbackMessagePp digs the Pp payload out of a Message feedback:
// (Feedback ((doc_id _) (span_id _) (route _) (contents (Message (level _)
// (loc _) (pp <payload>))))).
func feedbackMessagePp(n sexp.Node) *sexp.Node {
	msg := findHead(n, "Message", 4)
	if msg == nil {
		return nil
	}
	if pp := findHead(*msg, "pp", 2); pp != nil && len(pp.Items) >= 2 {
		return &pp.Items[1]
	}
	// Older sertop puts the payload positionally after level and loc.
	if len(msg.Items) >= 4 {
		return &msg.Items[3]
	}
	return nil
}

// HammerPremiseNames runs the hammer's `predict <k>.` tactic and reads the
// premise names out of its diagnostic feedback, then cancels the throwaway
// statement. Returns nil outside a proof.
func (s *Session) HammerPremiseNames(k int) ([]string, error) {
	if !s.cfg.UseHammer {
		return nil, &DriverError{Kind: ErrNotFound, Payload: "hammer not enabled"}
	}
	if s.proofCtx == nil || len(s.proofCtx.Fg) == 0 {
		return nil, nil
	}
	if err := s.RunStmtWithTimeout(fmt.Sprintf("predict %d.", k), 2*time.Minute); err != nil {
		return nil, err
	}
	names := extractHammerPremiseNames(s.feedbacks)
	if err := s.CancelLast(); err != nil {
		return nil, err
	}
	return names, nil
}

// HammerPremises resolves each predicted premise name to its full
// "name : type" statement; names Check cannot resolve are dropped.
func (s *Session) HammerPremises(k int) ([]string, error) {
	names, err := s.HammerPremiseNames(k)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		line, err := s.FullLine(name)
		if err != nil || line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// extractHammerPremiseNames reads the predict tactic's output through the
// fixed index path feedbacks[3][1][3][1][3][1][1]: the fourth feedback's
// Message payload holds one string leaf of comma-separated premise names.
// The path encodes sertop's current feedback shape; centralized here so a
// protocol change is a one-line fix.
func extractHammerPremiseNames(feedbacks []Msg) []string {
	const fixedIndex = 3
	if len(feedbacks) <= fixedIndex {
		return nil
	}
	n := feedbacks[fixedIndex].Raw
	for _, idx := range []int{1, 3, 1, 3, 1, 1} {
		if n.Kind != sexp.ListKind || idx >= len(n.Items) {
			return nil
		}
		n = n.Items[idx]
	}
	if n.Kind != sexp.AtomKind || n.Atom == "" {
		return nil
	}
	return strings.Split(n.Atom, ", ")
}
