package driver

import (
	"reflect"
	"testing"

	"github.com/sanjit/coq-serapy/internal/sexp"
)

func mustParse(t *testing.T, s string) sexp.Node {
	t.Helper()
	n, err := sexp.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return n
}

func TestExtractHammerPremiseNames(t *testing.T) {
	fbText := `(Feedback ((doc_id 0) (span_id 1) (route 0) (contents (Message (level Info) (loc ()) (pp (Pp_string "Nat.add_0_l, Nat.add_comm"))))))`
	var feedbacks []Msg
	for i := 0; i < 4; i++ {
		feedbacks = append(feedbacks, Msg{Kind: MsgFeedback, Raw: mustParse(t, fbText)})
	}
	got := extractHammerPremiseNames(feedbacks)
	want := []string{"Nat.add_0_l", "Nat.add_comm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractHammerPremiseNamesTooFewFeedbacks(t *testing.T) {
	if got := extractHammerPremiseNames(nil); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestFeedbackMessagePp(t *testing.T) {
	n := mustParse(t, `(Feedback ((doc_id 0) (span_id 1) (route 0) (contents (Message (level Notice) (loc ()) (pp (Pp_string "f : nat -> nat"))))))`)
	pp := feedbackMessagePp(n)
	if pp == nil {
		t.Fatalf("expected a pp payload")
	}
	if !pp.HeadIs("Pp_string") {
		t.Errorf("got %s", pp.String())
	}
}

func TestKernelName(t *testing.T) {
	n := mustParse(t, `((MutInd (MPfile (DirPath ((Id Datatypes) (Id Init) (Id Coq)))) (Id nat)) extra)`)
	got := kernelName(n.Items[0])
	if got != "Coq.Init.Datatypes.nat" {
		t.Errorf("got %q", got)
	}
}

func TestModPathStringDot(t *testing.T) {
	n := mustParse(t, `(MPdot (MPfile (DirPath ((Id Init) (Id Coq)))) (Id Nat))`)
	if got := modPathString(n); got != "Coq.Init.Nat" {
		t.Errorf("got %q", got)
	}
}

func TestFindHeadBoundedDepth(t *testing.T) {
	n := mustParse(t, `(a (b (c (target 1))))`)
	if found := findHead(n, "target", 5); found == nil {
		t.Errorf("expected to find target within depth 5")
	}
	if found := findHead(n, "target", 2); found != nil {
		t.Errorf("expected depth 2 to be too shallow")
	}
}
