package driver

// tacticFrame is one node of the tactic-history tree, stored in an arena and
// addressed by index so the tree never needs back-pointers or cyclic
// structs. A frame's Children mix tactic entries (IsTactic true) and nested
// subgoal frames (IsTactic false, Child is the arena index of the frame).
type tacticFrame struct {
	Children []tacticEntry
}

type tacticEntry struct {
	IsTactic bool
	Text     string  // valid when IsTactic
	StateId  StateId // valid when IsTactic
	Child    int     // arena index, valid when !IsTactic
}

// TacticHistory is the tree of tactics and nested subgoal frames executed
// since the proof currently in progress was opened, plus the shadow stack of
// background-obligation snapshots needed to restore Bg when a frame closes.
type TacticHistory struct {
	arena   []tacticFrame
	path    []int // arena indices from root to the currently focused frame
	bgStack [][]Obligation
}

// NewTacticHistory starts a fresh, empty history rooted at one frame.
func NewTacticHistory() *TacticHistory {
	return &TacticHistory{arena: []tacticFrame{{}}, path: []int{0}}
}

func (h *TacticHistory) current() int { return h.path[len(h.path)-1] }

// AddTactic records a plain tactic invocation in the currently focused
// frame.
func (h *TacticHistory) AddTactic(text string, sid StateId) {
	cur := h.current()
	h.arena[cur].Children = append(h.arena[cur].Children, tacticEntry{IsTactic: true, Text: text, StateId: sid})
}

// OpenSubgoal pushes a new nested frame (a "{" or numbered-selector focus),
// recording the background obligations in effect before the focus so
// RemoveLast/CloseSubgoal can restore them.
func (h *TacticHistory) OpenSubgoal(bg []Obligation) {
	idx := len(h.arena)
	h.arena = append(h.arena, tacticFrame{})
	cur := h.current()
	h.arena[cur].Children = append(h.arena[cur].Children, tacticEntry{IsTactic: false, Child: idx})
	h.path = append(h.path, idx)
	h.bgStack = append(h.bgStack, bg)
}

// CloseSubgoal pops the currently focused frame ("}"), returning the Bg
// snapshot captured when it was opened.
func (h *TacticHistory) CloseSubgoal() []Obligation {
	if len(h.path) <= 1 {
		return nil
	}
	h.path = h.path[:len(h.path)-1]
	bg := h.bgStack[len(h.bgStack)-1]
	h.bgStack = h.bgStack[:len(h.bgStack)-1]
	return bg
}

// Depth is the current nesting depth (0 at the root frame).
func (h *TacticHistory) Depth() int { return len(h.path) - 1 }

// Empty reports whether nothing has been recorded at all: root frame with no
// children and no nesting.
func (h *TacticHistory) Empty() bool {
	return len(h.path) == 1 && len(h.arena[0].Children) == 0
}

// LastStateId returns the StateId of the most recently recorded tactic
// entry, if the last thing recorded in the focused frame was a tactic.
func (h *TacticHistory) LastStateId() (StateId, bool) {
	cur := h.arena[h.current()]
	if len(cur.Children) == 0 {
		return 0, false
	}
	last := cur.Children[len(cur.Children)-1]
	if !last.IsTactic {
		return 0, false
	}
	return last.StateId, true
}

// LastTactic returns the text and StateId of the most recently recorded
// tactic entry, if the last thing recorded in the focused frame was a
// tactic.
func (h *TacticHistory) LastTactic() (string, StateId, bool) {
	cur := h.arena[h.current()]
	if len(cur.Children) == 0 {
		return "", 0, false
	}
	last := cur.Children[len(cur.Children)-1]
	if !last.IsTactic {
		return "", 0, false
	}
	return last.Text, last.StateId, true
}

// RemoveLast is the inverse of the last mutation (AddTactic, OpenSubgoal,
// or CloseSubgoal): pop a trailing tactic entry; or, if the focused frame
// is now empty, pop the frame itself; or, if the last child is a nested
// frame, re-enter it.
func (h *TacticHistory) RemoveLast(allSubgoals []Obligation) {
	cur := h.current()
	children := h.arena[cur].Children
	if len(children) == 0 {
		if len(h.path) > 1 {
			h.path = h.path[:len(h.path)-1]
			parent := h.current()
			h.arena[parent].Children = h.arena[parent].Children[:len(h.arena[parent].Children)-1]
			if len(h.bgStack) > 0 {
				h.bgStack = h.bgStack[:len(h.bgStack)-1]
			}
		}
		return
	}
	last := children[len(children)-1]
	if last.IsTactic {
		h.arena[cur].Children = children[:len(children)-1]
		return
	}
	// Last child is a nested frame: re-enter it.
	h.path = append(h.path, last.Child)
	h.bgStack = append(h.bgStack, allSubgoals)
}

// GetCurrentHistory returns the tactic texts recorded in the focused frame,
// in order.
func (h *TacticHistory) GetCurrentHistory() []string {
	var out []string
	for _, e := range h.arena[h.current()].Children {
		if e.IsTactic {
			out = append(out, e.Text)
		}
	}
	return out
}

// GetFullHistory walks the whole tree depth-first, yielding every tactic
// text in execution order.
func (h *TacticHistory) GetFullHistory() []string {
	var out []string
	var walk func(idx int)
	walk = func(idx int) {
		for _, e := range h.arena[idx].Children {
			if e.IsTactic {
				out = append(out, e.Text)
			} else {
				walk(e.Child)
			}
		}
	}
	walk(0)
	return out
}

// GetNextCancelled reports the StateId that cancel_last must target: the
// StateId of the last tactic entry in the focused frame, if any.
func (h *TacticHistory) GetNextCancelled() (StateId, bool) {
	return h.LastStateId()
}

// --- module/section stack -------------------------------------------------

// ModuleSectionStack holds the module/section stack and applies the
// stack-update functions in preprocess.go to it. It does not touch the local
// lemma registry; dropping section-scoped lemmas on a Section close is left
// to the caller (see PoppedSection).
type ModuleSectionStack struct {
	entries []SMEntry
}

func NewModuleSectionStack() *ModuleSectionStack { return &ModuleSectionStack{} }

func (s *ModuleSectionStack) Apply(cmd string) error {
	updated, err := UpdateSMStack(s.entries, cmd)
	if err != nil {
		return err
	}
	s.entries = updated
	return nil
}

func (s *ModuleSectionStack) ModulePrefix() string { return ModulePrefix(s.entries) }
func (s *ModuleSectionStack) SMPrefix() string     { return SMPrefix(s.entries) }
func (s *ModuleSectionStack) Entries() []SMEntry   { return append([]SMEntry{}, s.entries...) }

// PoppedSection reports whether applying cmd would pop a Section (as opposed
// to a Module), which triggers local-lemma-registry filtering.
func PoppedSection(before []SMEntry, cmd string) (string, bool) {
	m := reEnd.FindStringSubmatch(cmd)
	if m == nil || len(before) == 0 {
		return "", false
	}
	top := before[len(before)-1]
	if top.Name == m[1] && top.IsSection {
		return top.Name, true
	}
	return "", false
}

// --- local lemma registry -------------------------------------------------

// LemmaEntry is one statement introduced while inside the current module
// prefix.
type LemmaEntry struct {
	Statement string
	IsSection bool
}

// LocalLemmaRegistry tracks every lemma statement introduced in the current
// session that hasn't since been popped by a Section close.
type LocalLemmaRegistry struct {
	entries []LemmaEntry
}

func NewLocalLemmaRegistry() *LocalLemmaRegistry { return &LocalLemmaRegistry{} }

func (r *LocalLemmaRegistry) Register(stmt string, isSection bool) {
	r.entries = append(r.entries, LemmaEntry{Statement: stmt, IsSection: isSection})
}

// PopLast removes the most recently registered entry (Abort).
func (r *LocalLemmaRegistry) PopLast() {
	if len(r.entries) > 0 {
		r.entries = r.entries[:len(r.entries)-1]
	}
}

// Unregister removes the most recent entry exactly matching stmt, used when
// the statement that registered it is cancelled.
func (r *LocalLemmaRegistry) Unregister(stmt string, isSection bool) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Statement == stmt && r.entries[i].IsSection == isSection {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// RemoveByName removes every entry whose statement names `name` (Reset name).
func (r *LocalLemmaRegistry) RemoveByName(name string) {
	out := r.entries[:0]
	for _, e := range r.entries {
		if !statementNames(e.Statement, name) {
			out = append(out, e)
		}
	}
	r.entries = out
}

// RemoveSectionScoped removes every entry marked IsSection (End of a
// Section).
func (r *LocalLemmaRegistry) RemoveSectionScoped() {
	var out []LemmaEntry
	for _, e := range r.entries {
		if !e.IsSection {
			out = append(out, e)
		}
	}
	r.entries = out
}

func (r *LocalLemmaRegistry) Entries() []LemmaEntry { return append([]LemmaEntry{}, r.entries...) }

func statementNames(stmt, name string) bool {
	for i := 0; i+len(name) <= len(stmt); i++ {
		if stmt[i:i+len(name)] == name {
			before := i == 0 || !isIdentByte(stmt[i-1])
			after := i+len(name) == len(stmt) || !isIdentByte(stmt[i+len(name)])
			if before && after {
				return true
			}
		}
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '.' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// --- command history -------------------------------------------------------

// CommandEntry is one audit-log row used only for replay after a reset.
type CommandEntry struct {
	Text     string
	Accepted bool
	StateId  StateId
}

// CommandHistory is the append-only (truncatable on cancel) replay log.
type CommandHistory struct {
	entries []CommandEntry
}

func NewCommandHistory() *CommandHistory { return &CommandHistory{} }

func (h *CommandHistory) Append(text string, accepted bool, sid StateId) {
	h.entries = append(h.entries, CommandEntry{Text: text, Accepted: accepted, StateId: sid})
}

// Begin opens a not-yet-accepted entry for a statement about to run.
func (h *CommandHistory) Begin(text string) {
	h.entries = append(h.entries, CommandEntry{Text: text, Accepted: false, StateId: -1})
}

// MarkLastAccepted records the state id the statement resolved to.
func (h *CommandHistory) MarkLastAccepted(sid StateId) {
	if len(h.entries) > 0 {
		h.entries[len(h.entries)-1].Accepted = true
		h.entries[len(h.entries)-1].StateId = sid
	}
}

// TrimLastIfRejected drops the trailing entry when its statement failed,
// keeping the replay log to accepted commands only.
func (h *CommandHistory) TrimLastIfRejected() {
	if len(h.entries) > 0 && !h.entries[len(h.entries)-1].Accepted {
		h.entries = h.entries[:len(h.entries)-1]
	}
}

// Last returns the most recent entry, accepted or not.
func (h *CommandHistory) Last() (CommandEntry, bool) {
	if len(h.entries) == 0 {
		return CommandEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// TrimTail removes command-log entries from the end matching sid, used by
// cancel to keep the replay log consistent with the rolled-back state.
func (h *CommandHistory) TrimTail(sid StateId) {
	for len(h.entries) > 0 && h.entries[len(h.entries)-1].StateId == sid {
		h.entries = h.entries[:len(h.entries)-1]
	}
}

// LastAccepted returns the most recent accepted entry, scanning past any
// trailing rejected entries.
func (h *CommandHistory) LastAccepted() (CommandEntry, bool) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Accepted {
			return h.entries[i], true
		}
	}
	return CommandEntry{}, false
}

// Accepted returns every accepted entry's text, in order: the replay list.
func (h *CommandHistory) Accepted() []string {
	var out []string
	for _, e := range h.entries {
		if e.Accepted {
			out = append(out, e.Text)
		}
	}
	return out
}

func (h *CommandHistory) Len() int { return len(h.entries) }
