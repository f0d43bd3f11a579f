package sexp

import (
	"reflect"
	"testing"
)

func TestParseAtom(t *testing.T) {
	n, err := Parse("Ack")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !n.IsAtom("Ack") {
		t.Errorf("got %+v, want atom Ack", n)
	}
}

func TestParseList(t *testing.T) {
	n, err := Parse(`(Answer 1 Ack)`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Kind != ListKind || len(n.Items) != 3 {
		t.Fatalf("got %+v", n)
	}
	if !n.Items[0].IsAtom("Answer") || !n.Items[1].IsAtom("1") || !n.Items[2].IsAtom("Ack") {
		t.Errorf("got %+v", n)
	}
}

func TestParseQuotedEscapes(t *testing.T) {
	n, err := Parse(`"a \"b\" c\\d"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := `a "b" c\d`
	if n.Atom != want {
		t.Errorf("got %q, want %q", n.Atom, want)
	}
}

func TestRoundTrip(t *testing.T) {
	n := MkList([]Node{MkAtom("Add"), MkList(nil), MkAtom("hello world")})
	got := n.String()
	want := `(Add () "hello world")`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	reparsed, err := Parse(got)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !reflect.DeepEqual(reparsed, n) {
		t.Errorf("round trip mismatch: got %+v, want %+v", reparsed, n)
	}
}

func TestEscape(t *testing.T) {
	got := Escape(`say "hi" \now`)
	want := `say \"hi\" \\now`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitize(t *testing.T) {
	in := `(Pp_string [) (Pp_string ])`
	got := Sanitize(in)
	want := `(Pp_string "[") (Pp_string "]")`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSplitTopLevel(t *testing.T) {
	s := `(1 (2 3) "a b" atom)`
	got, err := SplitTopLevel(s)
	if err != nil {
		t.Fatalf("SplitTopLevel: %v", err)
	}
	want := []string{"1", "(2 3)", `"a b"`, "atom"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSplitTopLevelEmpty(t *testing.T) {
	got, err := SplitTopLevel("()")
	if err != nil {
		t.Fatalf("SplitTopLevel: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestSplitTopLevelAdjacentLists(t *testing.T) {
	got, err := SplitTopLevel(`((a 1)(b 2))`)
	if err != nil {
		t.Fatalf("SplitTopLevel: %v", err)
	}
	want := []string{"(a 1)", "(b 2)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSplitTopLevelNested(t *testing.T) {
	s := `((fg ((g1) (g2))) (bg ()))`
	got, err := SplitTopLevel(s)
	if err != nil {
		t.Fatalf("SplitTopLevel: %v", err)
	}
	want := []string{"(fg ((g1) (g2)))", "(bg ())"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
