package driver

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sanjit/coq-serapy/internal/sexp"
)

// Session drives one sertop subprocess end to end: the transport, the
// message classifier, and the proof-state mirror, exposing a synchronous
// RunStmt/CancelLast/query surface.
type Session struct {
	cfg Config
	id  uuid.UUID

	t *pipeTransport

	curState  StateId
	prevState StateId
	proofCtx  *ProofContext

	history *TacticHistory
	smStack *ModuleSectionStack
	lemmas  *LocalLemmaRegistry
	cmdLog  *CommandHistory

	// feedbacks holds the Feedback messages of the most recent statement,
	// for callers of diagnostic-emitting tactics such as the hammer's
	// predict.
	feedbacks []Msg

	termCache  *lru.Cache[string, string]
	resetCount int

	pending *Msg // one-message lookahead, fed back by discardInitialFeedback
}

// NewSession spawns the prover subprocess per cfg and runs its init
// sequence (module wrapper, Unset Printing Notations, _CoqProject prelude,
// optional hammer preload).
func NewSession(cfg Config) (*Session, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if len(cfg.CoqCommand) == 0 {
		cfg.CoqCommand = DefaultConfig().CoqCommand
	}
	s := &Session{
		cfg:       cfg,
		id:        uuid.New(),
		cmdLog:    NewCommandHistory(),
		termCache: newTermCache(),
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID is this session's unique identifier, used in verbose trace lines.
func (s *Session) ID() uuid.UUID { return s.id }

// CurState is the prover's current state id.
func (s *Session) CurState() StateId { return s.curState }

// ProofContext returns the mirror's current proof context, or nil outside a
// proof.
func (s *Session) ProofContext() *ProofContext { return s.proofCtx }

// Feedbacks returns the Feedback messages emitted by the most recent
// statement.
func (s *Session) Feedbacks() []Msg { return s.feedbacks }

// PrevTactics lists the tactics recorded in the currently focused history
// frame, in order.
func (s *Session) PrevTactics() []string { return s.history.GetCurrentHistory() }

// LocalLemmas returns the statements currently registered in the local
// lemma registry.
func (s *Session) LocalLemmas() []LemmaEntry { return s.lemmas.Entries() }

// ModulePrefix is the dotted prefix of the currently open (non-section)
// modules.
func (s *Session) ModulePrefix() string { return s.smStack.ModulePrefix() }

// CurLemmaName is the name of the lemma currently being proved: the
// identifier of the most recently registered local lemma, without its
// module prefix.
func (s *Session) CurLemmaName() string {
	entries := s.lemmas.Entries()
	if len(entries) == 0 {
		return ""
	}
	stmt := entries[len(entries)-1].Statement
	i := strings.Index(stmt, ":")
	if i <= 0 {
		return ""
	}
	name := strings.TrimSpace(stmt[:i])
	if j := strings.LastIndex(name, "."); j != -1 {
		name = name[j+1:]
	}
	return name
}

// ResetCount is the number of times this session has restarted its prover
// subprocess: every full kill-and-replay recovery and every explicit Reset.
func (s *Session) ResetCount() int { return s.resetCount }

// Kill terminates the prover subprocess without attempting any cleanup
// vernaculars.
func (s *Session) Kill() error { return s.t.kill() }

// init (re)establishes the subprocess and the mirror's zero state. Used both
// by NewSession and by the full reset+replay recovery path.
func (s *Session) init() error {
	t, err := newPipeTransport(s.cfg.CoqCommand, s.cfg.ProjectPath, s.cfg.Verbose, s.cfg.LogOutgoingMessages)
	if err != nil {
		return err
	}
	s.t = t
	t.logOutgoing("; session " + s.id.String())
	s.pending = nil
	s.curState = 0
	s.prevState = 0
	s.proofCtx = nil
	s.feedbacks = nil
	s.history = NewTacticHistory()
	s.smStack = NewModuleSectionStack()
	s.lemmas = NewLocalLemmaRegistry()

	if err := s.discardInitialFeedback(); err != nil {
		return err
	}

	// Init statements are re-run by every init, so they must not land in
	// the replay log; replaying "Module X." over an init that already
	// opened it would nest the wrapper module.
	saved := s.cmdLog
	s.cmdLog = NewCommandHistory()
	defer func() { s.cmdLog = saved }()

	if stem := moduleStemFromPath(s.cfg.ModulePath); stem != "" {
		if err := s.runOne(fmt.Sprintf("Module %s.", stem)); err != nil {
			return err
		}
	}
	if err := s.runOne("Unset Printing Notations."); err != nil {
		return err
	}
	if s.cfg.ModulePath != "" {
		prelude, err := DiscoverPrelude(s.cfg.ModulePath, s.cfg.ProjectPath)
		if err != nil && s.cfg.Verbose > 0 {
			log.Printf("driver: prelude discovery: %v", err)
		}
		for _, stmt := range prelude {
			if err := s.runOne(stmt); err != nil {
				return err
			}
		}
	}
	if s.cfg.UseHammer {
		if err := s.initHammer(); err != nil {
			return err
		}
	}
	return nil
}

func moduleStemFromPath(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return ""
	}
	switch stem {
	case "Parameter", "Prop", "Type":
		return ""
	}
	if stem[0] < 'A' || stem[0] > 'Z' {
		return ""
	}
	return stem
}

func (s *Session) initHammer() error {
	atp, reconstr, crush := s.cfg.HammerTimeLimits()
	stmts := []string{
		"From Hammer Require Import Hammer.",
		fmt.Sprintf("Set Hammer ATPLimit %d.", int(atp.Seconds())),
		fmt.Sprintf("Set Hammer ReconstrLimit %d.", int(reconstr.Seconds())),
		fmt.Sprintf("Set Hammer CrushLimit %d.", int(crush.Seconds())),
	}
	for _, c := range stmts {
		if err := s.runOne(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) discardInitialFeedback() error {
	for {
		line, ok, timedOut := s.t.recvLine(200 * time.Millisecond)
		if timedOut || !ok {
			return nil
		}
		node, err := sexp.Parse(line)
		if err != nil {
			continue
		}
		m, err := Classify(node)
		if err != nil {
			continue
		}
		if m.Kind != MsgFeedback {
			s.pending = &m
			return nil
		}
	}
}

// --- message plumbing -------------------------------------------------------

var errTimedOut = &DriverError{Kind: ErrTimeout, Payload: "message wait timed out"}

// nextRaw returns the next classified message, or errTimedOut if none
// arrived within timeout, or an ErrBrokenPipe DriverError if the pipe
// closed.
func (s *Session) nextRaw(timeout time.Duration) (Msg, error) {
	if s.pending != nil {
		m := *s.pending
		s.pending = nil
		return m, nil
	}
	line, ok, timedOut := s.t.recvLine(timeout)
	if timedOut {
		return Msg{}, errTimedOut
	}
	if !ok {
		return Msg{}, &DriverError{Kind: ErrBrokenPipe, Payload: "pipe closed"}
	}
	node, err := sexp.Parse(line)
	if err != nil {
		return Msg{}, &DriverError{Kind: ErrBadResponse, Payload: err.Error()}
	}
	return Classify(node)
}

// getMessage implements the timeout/interrupt protocol:
// on a first timeout, send one interrupt and retry; on a second timeout,
// send a second interrupt and retry; if a genuine message arrives after an
// interrupt (the interrupt raced the completion), return it after absorbing
// the Break acknowledgement; if nothing arrives after two interrupts, the
// pipe is considered hung.
func (s *Session) getMessage() (Msg, error) {
	m, err := s.nextRaw(s.cfg.Timeout)
	if err == nil {
		return m, nil
	}
	if !isTimeout(err) {
		return Msg{}, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := s.t.interrupt(); err != nil {
			return Msg{}, &DriverError{Kind: ErrBrokenPipe, Payload: err.Error()}
		}
		m, err = s.nextRaw(s.cfg.Timeout)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return Msg{}, err
		}
		if m.Kind == MsgBreak {
			m, err = s.nextRaw(s.cfg.Timeout)
			if err != nil {
				if isTimeout(err) {
					continue
				}
				return Msg{}, err
			}
		}
		return m, nil
	}
	return Msg{}, &DriverError{Kind: ErrTimeout, Payload: "no response after two interrupts"}
}

func isTimeout(err error) bool {
	var de *DriverError
	return errors.As(err, &de) && de.Kind == ErrTimeout
}

// flushQueue discards every message already sitting in the queue. Used
// before a Cancel so residual chatter from the failed command can't be
// mistaken for the Cancel's own response stream.
func (s *Session) flushQueue() {
	s.pending = nil
	for {
		_, ok, timedOut := s.t.recvLine(10 * time.Millisecond)
		if timedOut || !ok {
			return
		}
	}
}

// transact sends one sentence and collects its response: the leading Ack,
// every interleaved Feedback, the primary (non-feedback) answer, and the
// trailing Completed. Stray Sys.Break acknowledgements left over from an
// interrupt are skipped wherever they appear.
func (s *Session) transact(sentence string) (primary Msg, feedbacks []Msg, err error) {
	if err := s.t.send(sentence); err != nil {
		return Msg{}, nil, err
	}

	for {
		m, err := s.getMessage()
		if err != nil {
			return Msg{}, nil, err
		}
		if m.Kind == MsgBreak {
			continue
		}
		if m.Kind == MsgFeedback {
			feedbacks = append(feedbacks, m)
			continue
		}
		if m.Kind != MsgAck {
			return Msg{}, nil, &DriverError{Kind: ErrBadResponse, Payload: "expected Ack, got " + m.Raw.String()}
		}
		break
	}

	for {
		m, err := s.getMessage()
		if err != nil {
			return Msg{}, nil, err
		}
		if m.Kind == MsgBreak {
			continue
		}
		if m.Kind == MsgFeedback {
			feedbacks = append(feedbacks, m)
			continue
		}
		primary = m
		break
	}
	if primary.Kind == MsgCompleted {
		// No content answer for this request; the stream is already done.
		return primary, feedbacks, nil
	}

	for {
		m, err := s.getMessage()
		if err != nil {
			return Msg{}, nil, err
		}
		if m.Kind == MsgBreak {
			continue
		}
		if m.Kind == MsgFeedback {
			feedbacks = append(feedbacks, m)
			continue
		}
		if m.Kind == MsgCompleted {
			break
		}
		return Msg{}, nil, &DriverError{Kind: ErrBadResponse, Payload: "expected Completed, got " + m.Raw.String()}
	}
	return primary, feedbacks, nil
}

// --- the run_stmt transaction -----------------------------------------------

// RunStmt preprocesses text (comment stripping, the Coq.-prefix split) and
// runs each resulting sub-statement as one transaction. An unrecoverable
// transport failure (timeout after interrupts, broken pipe, unparseable
// response) triggers a full reset+replay before the error is returned.
func (s *Session) RunStmt(text string) error {
	stripped := KillComments(escapeStmt(text))
	for _, sub := range PreprocessCommand(stripped) {
		if strings.TrimSpace(sub) == "" {
			continue
		}
		if err := s.runOne(sub); err != nil {
			var de *DriverError
			if errors.As(err, &de) {
				switch de.Kind {
				case ErrTimeout, ErrBrokenPipe, ErrBadResponse:
					if rerr := s.fullReset(); rerr != nil && s.cfg.Verbose > 0 {
						log.Printf("driver: reset after %s failed: %v", de.Kind, rerr)
					}
				}
			}
			return err
		}
	}
	return nil
}

// RunStmtWithTimeout runs text like RunStmt but with a one-off per-message
// timeout in place of the configured one.
func (s *Session) RunStmtWithTimeout(text string, timeout time.Duration) error {
	old := s.cfg.Timeout
	s.cfg.Timeout = timeout
	defer func() { s.cfg.Timeout = old }()
	return s.RunStmt(text)
}

// escapeStmt protects embedded backslashes and quotes so they survive the
// Add sentence's own quoting.
func escapeStmt(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, `\`, `\\`), `"`, `\"`)
}

func (s *Session) runOne(cmd string) error {
	if s.cfg.Verbose >= 2 {
		log.Printf("driver %s: running statement: %s", s.id, strings.TrimLeft(cmd, "\n"))
	}
	s.cmdLog.Begin(cmd)

	// Speculative module/section stack update: closing a section drops its
	// section-scoped local lemmas.
	if _, popped := PoppedSection(s.smStack.Entries(), cmd); popped {
		s.lemmas.RemoveSectionScoped()
	}
	if err := s.smStack.Apply(cmd); err != nil {
		s.cmdLog.TrimLastIfRejected()
		return err
	}

	addPrimary, addFbs, err := s.transact(fmt.Sprintf(`(Add () "%s")`, escapeStmt(cmd)))
	if err != nil {
		s.cmdLog.TrimLastIfRejected()
		return err
	}
	if addPrimary.Kind == MsgExn {
		return s.handleExn(cmd, addPrimary)
	}
	if addPrimary.Kind != MsgAdded {
		s.cmdLog.TrimLastIfRejected()
		return &DriverError{Kind: ErrBadResponse, Stmt: cmd, Payload: "expected Added"}
	}

	sid := addPrimary.StateId
	s.prevState = s.curState
	s.curState = sid // the prover holds this state regardless of Exec's outcome

	execPrimary, execFbs, err := s.transact(fmt.Sprintf("(Exec %d)", sid))
	if err != nil {
		s.cmdLog.TrimLastIfRejected()
		return err
	}
	if execPrimary.Kind == MsgExn {
		return s.handleExn(cmd, execPrimary)
	}

	// The feedback buffer normally carries only the Exec stream; hammer
	// tactics also emit their diagnostics during Add.
	if strings.Contains(cmd, "hammer.") {
		s.feedbacks = append(addFbs, execFbs...)
	} else {
		s.feedbacks = execFbs
	}

	class := ClassifyStmt(cmd)
	ctxBefore := s.proofCtx

	switch {
	case class == StmtGoalOpen && ctxBefore != nil && len(ctxBefore.Fg) > 0:
		// A focus narrows to the first goal without changing any goal's
		// content, so no query is needed: fg = [old_fg[0]],
		// bg = old_bg ++ old_fg[1:].
		bg := append(append([]Obligation{}, ctxBefore.Bg...), ctxBefore.Fg[1:]...)
		s.proofCtx = &ProofContext{
			Fg:      []Obligation{ctxBefore.Fg[0]},
			Bg:      bg,
			Shelved: ctxBefore.Shelved,
			GivenUp: ctxBefore.GivenUp,
		}
	case class == StmtGoalClose || class == StmtUnshelve:
		newCtx, err := s.refreshProofContext(true)
		if err != nil {
			s.cmdLog.TrimLastIfRejected()
			return err
		}
		s.proofCtx = newCtx
	default:
		newCtx, err := s.refreshProofContext(ctxBefore == nil)
		if err != nil {
			s.cmdLog.TrimLastIfRejected()
			return err
		}
		s.proofCtx = newCtx
	}

	// Local lemma registry: entering a proof registers the statements the
	// command declares; a command outside any proof applies Abort/Reset
	// removals and clears the tactic history.
	if ctxBefore == nil && s.proofCtx != nil {
		isSection := strings.Contains(cmd, "Let")
		for _, stmt := range ExtractLemmaStatements(cmd, s.smStack.ModulePrefix()) {
			s.lemmas.Register(stmt, isSection)
		}
	} else if s.proofCtx == nil {
		if m := reResetCmd.FindStringSubmatch(cmd); m != nil {
			s.lemmas.RemoveByName(s.smStack.ModulePrefix() + m[1])
		}
		if reAbort.MatchString(cmd) {
			s.lemmas.PopLast()
		}
		s.history = NewTacticHistory()
	}

	// Tactic history: recorded only while inside a proof, so history is
	// empty exactly when proofCtx is nil.
	switch {
	case class == StmtProofStarter && s.proofCtx != nil:
		s.history.AddTactic(cmd, sid)
	case class == StmtGoalOpen && ctxBefore != nil:
		var rest []Obligation
		if len(ctxBefore.Fg) > 1 {
			rest = append(rest, ctxBefore.Fg[1:]...)
		}
		s.history.OpenSubgoal(rest)
	case class == StmtGoalClose:
		s.history.CloseSubgoal()
	case s.proofCtx != nil:
		s.history.AddTactic(cmd, sid)
	}

	s.cmdLog.MarkLastAccepted(sid)
	return nil
}

var (
	reResetCmd = regexp.MustCompile(`^\s*Reset\s+([\w.']+)\s*\.`)
	reAbort    = regexp.MustCompile(`^\s*Abort\b`)
)

// handleExn applies the per-kind recovery policy of the error taxonomy:
// parse errors roll cur_state back without a cancel (the statement never
// executed); reserved-identifier means the Add itself was rejected outright;
// NoSuchGoal, Not_found, and ordinary execution errors both raise and call
// cancel_failed so the mirror doesn't drift; unrecoverable kinds trigger a
// full reset and replay. The failed command-log entry is trimmed in every
// case.
func (s *Session) handleExn(cmd string, m Msg) error {
	text := strings.Join(m.ExnMessages, "\n")
	de := &DriverError{Kind: m.ExnKind, Stmt: cmd, Payload: text}
	s.cmdLog.TrimLastIfRejected()

	switch {
	case de.Kind == ErrParse:
		s.curState = s.prevState
	case de.Kind == ErrReservedIdent:
		// The Add was rejected; there is nothing to cancel.
	case de.Kind.Unrecoverable():
		if rerr := s.fullReset(); rerr != nil && s.cfg.Verbose > 0 {
			log.Printf("driver: reset after %s failed: %v", de.Kind, rerr)
		}
	default:
		if cerr := s.cancelFailed(); cerr != nil && s.cfg.ResetOnCancelFail {
			if rerr := s.fullReset(); rerr != nil && s.cfg.Verbose > 0 {
				log.Printf("driver: reset after cancel_failed failed: %v", rerr)
			}
		}
	}
	return de
}

// --- cancel / recovery ------------------------------------------------------

// CancelLast rolls back the last accepted statement: it cancels cur_state,
// restores the proof context and tactic history to how they were before
// that statement, and trims the command log. Cancelling also works outside
// a proof, rolling back a plain vernacular.
func (s *Session) CancelLast() error {
	if s.curState == 0 {
		return &DriverError{Kind: ErrNotFound, Payload: "nothing to cancel"}
	}
	if s.proofCtx != nil {
		if text, _, ok := s.history.LastTactic(); ok {
			isSection := strings.Contains(text, "Let")
			for _, stmt := range ExtractLemmaStatements(text, s.smStack.ModulePrefix()) {
				s.lemmas.Unregister(stmt, isSection)
			}
		}
	}
	if err := s.doCancel(); err != nil {
		return err
	}
	if s.proofCtx == nil && !s.history.Empty() {
		s.history = NewTacticHistory()
	}
	return nil
}

// cancelFailed is the idempotent post-failure reconciliation call: a no-op
// if the mirror's cur_state already matches the last accepted command-log
// entry, otherwise it runs the same wire-protocol cancel as CancelLast.
func (s *Session) cancelFailed() error {
	if last, ok := s.cmdLog.Last(); ok {
		if last.Accepted && last.StateId == s.curState {
			return nil
		}
	} else if s.curState == 0 {
		return nil
	}
	return s.doCancel()
}

// doCancel runs the wire-protocol (Cancel (cur_state)) exchange and
// reconciles every piece of mirror state against its result: the Ack, a
// Feedback carrying the rolled-back state, the Canceled answer whose
// minimum id becomes the new cur_state, and the trailing Completed.
func (s *Session) doCancel() error {
	s.flushQueue()
	cancelledState := s.curState
	ctxBefore := s.proofCtx

	if err := s.t.send(fmt.Sprintf("(Cancel (%d))", cancelledState)); err != nil {
		return err
	}

	var canceled Msg
	for {
		m, err := s.getMessage()
		if err != nil {
			return err
		}
		switch m.Kind {
		case MsgAck, MsgFeedback, MsgBreak:
			continue
		case MsgCanceled:
			canceled = m
		case MsgExn:
			// Drain the Completed before surfacing the failure.
			s.drainCompleted()
			return &DriverError{Kind: m.ExnKind, Payload: strings.Join(m.ExnMessages, "\n")}
		default:
			return &DriverError{Kind: ErrBadResponse, Payload: "expected Canceled, got " + m.Raw.String()}
		}
		break
	}
	if err := s.drainCompleted(); err != nil {
		return err
	}

	s.curState = canceled.MinCanceledId()
	newCtx, err := s.refreshProofContext(true)
	if err != nil {
		return err
	}
	s.proofCtx = newCtx

	if !s.history.Empty() {
		if sid, ok := s.history.LastStateId(); !ok || sid == cancelledState {
			var fg []Obligation
			if ctxBefore != nil {
				fg = ctxBefore.Fg
			}
			s.history.RemoveLast(fg)
		}
	}
	s.cmdLog.TrimTail(cancelledState)
	return nil
}

func (s *Session) drainCompleted() error {
	for {
		m, err := s.getMessage()
		if err != nil {
			return err
		}
		switch m.Kind {
		case MsgFeedback, MsgBreak:
			continue
		case MsgCompleted:
			return nil
		default:
			return &DriverError{Kind: ErrBadResponse, Payload: "expected Completed, got " + m.Raw.String()}
		}
	}
}

// queryRaw sends a (Query ...) or (Print ...) sentence and returns its
// primary (non-feedback) answer, converting a CoqExn into a DriverError via
// the same recovery path run_stmt uses.
func (s *Session) queryRaw(sentence string) (Msg, error) {
	primary, _, err := s.transact(sentence)
	if err != nil {
		return Msg{}, err
	}
	if primary.Kind == MsgExn {
		return Msg{}, s.handleExn(sentence, primary)
	}
	return primary, nil
}

// fullReset kills the subprocess, reinitializes it from scratch, and
// replays every previously accepted command, the unrecoverable-failure
// recovery path.
func (s *Session) fullReset() error {
	replay := s.cmdLog.Accepted()
	_ = s.t.kill()
	if err := s.init(); err != nil {
		return err
	}
	s.resetCount++
	s.cmdLog = NewCommandHistory()
	for _, cmd := range replay {
		if err := s.runOne(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Reset is the public equivalent of a fresh start: it discards all proof
// progress and reinitializes the subprocess without replaying anything.
func (s *Session) Reset() error {
	_ = s.t.kill()
	s.cmdLog = NewCommandHistory()
	if err := s.init(); err != nil {
		return err
	}
	s.resetCount++
	return nil
}
