package driver

import (
	"regexp"
	"strings"
)

// SplitSentences breaks raw Coq/Rocq source into individual sentences:
// one vernacular command or tactic per element, terminated by the period
// that closed it. Quote state and comment depth are tracked so a period or
// bracket inside a string literal or comment is not mistaken for a
// terminator, and bullets/selector braces each end their own sentence.
func SplitSentences(contents string) []string {
	var result []string
	var cur strings.Builder
	depth := 0
	inQuote := false

	flush := func() {
		result = append(result, cur.String())
		cur.Reset()
	}

	i := 0
	for i < len(contents) {
		c := contents[i]

		if depth == 0 && !inQuote && c == '"' {
			inQuote = true
			cur.WriteByte(c)
			i++
			continue
		}
		if inQuote && c == '"' {
			inQuote = false
			cur.WriteByte(c)
			i++
			continue
		}
		if inQuote {
			cur.WriteByte(c)
			i++
			continue
		}
		if c == '(' && i+1 < len(contents) && contents[i+1] == '*' {
			depth++
			cur.WriteByte(c)
			cur.WriteByte('*')
			i += 2
			continue
		}
		if depth > 0 && c == '*' && i+1 < len(contents) && contents[i+1] == ')' {
			depth--
			cur.WriteByte(c)
			cur.WriteByte(')')
			i += 2
			continue
		}
		if depth > 0 {
			cur.WriteByte(c)
			i++
			continue
		}
		if c == '{' || c == '}' {
			before := killCommentsTrailing(cur.String())
			if strings.TrimSpace(before) == "" || reGoalIdxOnly.MatchString(before) {
				if cur.Len() > 0 {
					flush()
				}
				cur.WriteByte(c)
				flush()
				i++
				continue
			}
			cur.WriteByte(c)
			i++
			continue
		}
		if m := reBullet.FindStringIndex(contents[i:]); m != nil && m[0] == 0 {
			before := killCommentsTrailing(cur.String())
			if strings.TrimSpace(before) == "" {
				end := i + m[1]
				cur.WriteString(contents[i:end])
				flush()
				i = end
				continue
			}
		}
		if c == '.' && (i+1 == len(contents) || isSep(contents[i+1])) && !(i > 0 && contents[i-1] == '.') {
			cur.WriteByte(c)
			flush()
			i++
			continue
		}
		cur.WriteByte(c)
		i++
	}
	if strings.TrimSpace(cur.String()) != "" {
		flush()
	}

	out := make([]string, 0, len(result))
	for _, r := range result {
		s := strings.TrimSpace(KillComments(r))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var reGoalIdxOnly = regexp.MustCompile(`^\s*(?:\d+\s*:)?\s*$`)
var reBullet = regexp.MustCompile(`^[+\-*]+(?:[^)+\-*]|$)`)

func isSep(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func killCommentsTrailing(s string) string {
	return KillComments(s)
}

// Linearize splits a single already-accepted tactic into the individual
// "m: tactic." statements that `;`-sequencing and `[ | ]` bracket branches
// would otherwise bundle into one opaque step, so the executor and cancel
// controller can operate at single-tactic granularity. Goal selectors
// (`n:` / `all:`) are peeled off and reattached to each resulting piece.
// This is heuristic, not a full parser: a tactic containing an unbalanced
// `match goal with ... end` or unbalanced brackets is returned unsplit.
func Linearize(stmt string) []string {
	trimmed := strings.TrimSpace(stmt)
	if !hasBalancedBrackets(trimmed) || !hasBalancedMatchGoal(trimmed) {
		return []string{stmt}
	}

	selector, body := splitSelector(trimmed)

	body = strings.TrimSuffix(strings.TrimSpace(body), ".")
	if strings.HasPrefix(body, "[") && strings.HasSuffix(body, "]") {
		parts := splitTopLevelBar(body[1 : len(body)-1])
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				p = "idtac"
			}
			out = append(out, withSelector(selector, p+"."))
		}
		return out
	}

	pieces := splitTopLevelSemicolon(body)
	if len(pieces) <= 1 {
		return []string{stmt}
	}
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, withSelector(selector, p+"."))
	}
	return out
}

var reSelectorAll = regexp.MustCompile(`^\s*all\s*:\s*`)
var reSelectorN = regexp.MustCompile(`^\s*(\d+)\s*:\s*`)

func splitSelector(s string) (string, string) {
	if reSelectorAll.MatchString(s) {
		return "all", reSelectorAll.ReplaceAllString(s, "")
	}
	if m := reSelectorN.FindStringSubmatchIndex(s); m != nil {
		return s[m[2]:m[3]], s[m[1]:]
	}
	return "", s
}

func withSelector(selector, stmt string) string {
	if selector == "" {
		return stmt
	}
	return selector + ": " + stmt
}

func hasBalancedBrackets(s string) bool {
	round, square := 0, 0
	for _, c := range s {
		switch c {
		case '(':
			round++
		case ')':
			round--
		case '[':
			square++
		case ']':
			square--
		}
		if round < 0 || square < 0 {
			return false
		}
	}
	return round == 0 && square == 0
}

var reMatchGoalOpen = regexp.MustCompile(`(?s)match\s+goal\s+with`)

func hasBalancedMatchGoal(s string) bool {
	if !reMatchGoalOpen.MatchString(s) {
		return true
	}
	return regexp.MustCompile(`(?s)match\s+goal\s+with.*\bend\b`).MatchString(s)
}

// splitTopLevelBar splits on '|' that isn't nested inside brackets/parens.
func splitTopLevelBar(s string) []string {
	return splitTopLevelOn(s, '|')
}

// splitTopLevelSemicolon splits on ';' that isn't nested inside
// brackets/parens, so "do [a | b]; c" splits into "do [a|b]" and "c" but
// a ';' inside the bracket branches is left alone.
func splitTopLevelSemicolon(s string) []string {
	return splitTopLevelOn(s, ';')
}

func splitTopLevelOn(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
