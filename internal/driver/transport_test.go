package driver

import (
	"runtime"
	"testing"
	"time"
)

// cat echoes stdin to stdout, which makes it a loopback prover for
// exercising the reader goroutine and framing without sertop.
func newLoopbackTransport(t *testing.T) *pipeTransport {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("loopback transport test needs cat")
	}
	tr, err := newPipeTransport([]string{"cat"}, "", 0, "")
	if err != nil {
		t.Fatalf("newPipeTransport: %v", err)
	}
	t.Cleanup(func() { _ = tr.kill() })
	return tr
}

func TestTransportRoundTrip(t *testing.T) {
	tr := newLoopbackTransport(t)

	if err := tr.send("(Answer 0 Ack)"); err != nil {
		t.Fatalf("send: %v", err)
	}
	line, ok, timedOut := tr.recvLine(5 * time.Second)
	if timedOut || !ok {
		t.Fatalf("recvLine: ok=%v timedOut=%v", ok, timedOut)
	}
	if line != "(Answer 0 Ack)" {
		t.Errorf("got %q", line)
	}
}

func TestTransportSkipsNonSexpLines(t *testing.T) {
	tr := newLoopbackTransport(t)

	if err := tr.send("some plugin banner"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := tr.send("(Feedback ())"); err != nil {
		t.Fatalf("send: %v", err)
	}
	line, ok, timedOut := tr.recvLine(5 * time.Second)
	if timedOut || !ok {
		t.Fatalf("recvLine: ok=%v timedOut=%v", ok, timedOut)
	}
	if line != "(Feedback ())" {
		t.Errorf("expected the banner to be skipped, got %q", line)
	}
}

func TestTransportSendAfterKill(t *testing.T) {
	tr := newLoopbackTransport(t)
	if err := tr.kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := tr.send("(Exec 1)"); err == nil {
		t.Fatalf("expected send on a closed transport to fail")
	}
}

func TestTransportSanitizesBracketLiterals(t *testing.T) {
	tr := newLoopbackTransport(t)

	if err := tr.send(`(Pp_string [)`); err != nil {
		t.Fatalf("send: %v", err)
	}
	line, ok, timedOut := tr.recvLine(5 * time.Second)
	if timedOut || !ok {
		t.Fatalf("recvLine: ok=%v timedOut=%v", ok, timedOut)
	}
	if line != `(Pp_string "[")` {
		t.Errorf("got %q", line)
	}
}
