package driver

import (
	"regexp"
	"strings"

	"github.com/sanjit/coq-serapy/internal/sexp"
)

// MsgKind tags the closed set of shapes the classifier recognizes.
type MsgKind int

const (
	MsgAck MsgKind = iota
	MsgCompleted
	MsgAdded
	MsgCanceled
	MsgObjList
	MsgExn
	MsgFeedback
	MsgBreak
)

// Msg is the classifier's normalized output: every line read from sertop
// becomes exactly one Msg.
type Msg struct {
	Kind MsgKind

	StateId      StateId   // MsgAdded
	CanceledIds  []StateId // MsgCanceled (raw, before taking the minimum)
	Raw          sexp.Node // MsgObjList / MsgFeedback payload / MsgExn node
	ExnMessages  []string  // MsgExn: concatenated (str "...") leaves
	ExnKind      ErrKind   // MsgExn: sub-classification
	FeedbackKind string    // MsgFeedback: Processed / ProcessingIn / Message / ...
}

// MinCanceledId returns the minimum of CanceledIds, which becomes the new
// cur_state after a Cancel.
func (m Msg) MinCanceledId() StateId {
	min := m.CanceledIds[0]
	for _, id := range m.CanceledIds[1:] {
		if id < min {
			min = id
		}
	}
	return min
}

// Classify turns one parsed sertop line into a Msg. line must already have
// had sexp.Sanitize applied and be parseable as a single S-expression.
func Classify(n sexp.Node) (Msg, error) {
	if n.IsAtom("Sys.Break") {
		return Msg{Kind: MsgBreak}, nil
	}
	if n.HeadIs("Feedback") {
		return classifyFeedback(n), nil
	}
	if n.HeadIs("Answer") {
		return classifyAnswer(n)
	}
	return Msg{}, &DriverError{Kind: ErrBadResponse, Payload: n.String()}
}

func classifyFeedback(n sexp.Node) Msg {
	kind := ""
	// (Feedback ((doc_id _) (span_id _) (route _) (contents <Kind>)))
	// or (Feedback (... (contents (<Kind> ...))))
	if len(n.Items) >= 2 && n.Items[1].Kind == sexp.ListKind {
		for _, field := range n.Items[1].Items {
			if field.HeadIs("contents") && len(field.Items) >= 2 {
				contents := field.Items[1]
				if contents.HeadIs("Message") {
					kind = "Message"
				} else if contents.Kind == sexp.AtomKind {
					kind = contents.Atom
				} else if contents.Kind == sexp.ListKind && len(contents.Items) > 0 && contents.Items[0].Kind == sexp.AtomKind {
					kind = contents.Items[0].Atom
				}
			}
		}
	}
	return Msg{Kind: MsgFeedback, Raw: n, FeedbackKind: kind}
}

func classifyAnswer(n sexp.Node) (Msg, error) {
	if len(n.Items) < 3 {
		return Msg{}, &DriverError{Kind: ErrBadResponse, Payload: n.String()}
	}
	payload := n.Items[2]

	switch {
	case payload.IsAtom("Ack"):
		return Msg{Kind: MsgAck}, nil
	case payload.IsAtom("Completed"):
		return Msg{Kind: MsgCompleted}, nil
	case payload.HeadIs("Added"):
		if len(payload.Items) < 2 {
			return Msg{}, &DriverError{Kind: ErrBadResponse, Payload: payload.String()}
		}
		return Msg{Kind: MsgAdded, StateId: atoi(payload.Items[1].Atom)}, nil
	case payload.HeadIs("Canceled"):
		if len(payload.Items) < 2 {
			return Msg{}, &DriverError{Kind: ErrBadResponse, Payload: payload.String()}
		}
		ids := payload.Items[1]
		var out []StateId
		for _, it := range ids.Items {
			out = append(out, atoi(it.Atom))
		}
		if len(out) == 0 {
			return Msg{}, &DriverError{Kind: ErrBadResponse, Payload: payload.String()}
		}
		return Msg{Kind: MsgCanceled, CanceledIds: out}, nil
	case payload.HeadIs("ObjList"):
		return Msg{Kind: MsgObjList, Raw: payload}, nil
	case payload.HeadIs("CoqExn"):
		msgs := collectStrLeaves(payload, 30)
		text := strings.Join(msgs, " ")
		return Msg{Kind: MsgExn, Raw: payload, ExnMessages: msgs, ExnKind: classifyExnText(text)}, nil
	default:
		return Msg{}, &DriverError{Kind: ErrBadResponse, Payload: payload.String()}
	}
}

func atoi(s string) StateId {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return StateId(n)
}

// collectStrLeaves walks n looking for (str "...") leaves, bounded by depth
// to avoid pathological recursion on a malformed payload.
func collectStrLeaves(n sexp.Node, depth int) []string {
	if depth <= 0 || n.Kind != sexp.ListKind {
		return nil
	}
	var out []string
	if n.HeadIs("str") && len(n.Items) >= 2 && n.Items[1].Kind == sexp.AtomKind {
		out = append(out, n.Items[1].Atom)
	}
	for _, child := range n.Items {
		out = append(out, collectStrLeaves(child, depth-1)...)
	}
	return out
}

var (
	reParseErr    = regexp.MustCompile(`Stream\.Error|Syntax error|CLexer\.Error|Invalid_argument`)
	reNoSuchGoals = regexp.MustCompile(`NoSuchGoals`)
	reNotFound    = regexp.MustCompile(`Not_found`)
	reOverflow    = regexp.MustCompile(`Overflowed|Stack overflow`)
	reAnomaly     = regexp.MustCompile(`Anomaly`)
	reReserved    = regexp.MustCompile(`identifier .* is reserved`)
	reUnify       = regexp.MustCompile(`Unable to unify|CErrors\.UserError|EvaluatedError`)
)

func classifyExnText(text string) ErrKind {
	switch {
	case reOverflow.MatchString(text):
		return ErrOverflow
	case reAnomaly.MatchString(text):
		return ErrAnomaly
	case reParseErr.MatchString(text):
		return ErrParse
	case reNoSuchGoals.MatchString(text):
		return ErrNoSuchGoal
	case reNotFound.MatchString(text):
		return ErrNotFound
	case reReserved.MatchString(text):
		return ErrReservedIdent
	case reUnify.MatchString(text):
		return ErrUnification
	default:
		return ErrUnification
	}
}
