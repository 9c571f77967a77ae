package event

import (
	"fmt"
	"strings"
)

// Gate is a parsed job or step condition. Conditions are conjunctions of
// equality terms over the event, e.g.:
//
//	event == pull_request
//	event == push && branch == main
//
// An empty condition always passes.
type Gate struct {
	terms []gateTerm
	raw   string
}

type gateTerm struct {
	field  string // "event" or "branch"
	value  string
	negate bool
}

// ParseGate parses a condition expression. Supported fields are "event" and
// "branch" with operators == and !=, joined by &&.
func ParseGate(expr string) (Gate, error) {
	g := Gate{raw: strings.TrimSpace(expr)}
	if g.raw == "" {
		return g, nil
	}
	for _, clause := range strings.Split(g.raw, "&&") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			return Gate{}, fmt.Errorf("empty clause in condition %q", expr)
		}
		var op string
		switch {
		case strings.Contains(clause, "!="):
			op = "!="
		case strings.Contains(clause, "=="):
			op = "=="
		default:
			return Gate{}, fmt.Errorf("condition clause %q: expected == or !=", clause)
		}
		parts := strings.SplitN(clause, op, 2)
		field := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if field != "event" && field != "branch" {
			return Gate{}, fmt.Errorf("condition clause %q: unknown field %q", clause, field)
		}
		if value == "" {
			return Gate{}, fmt.Errorf("condition clause %q: empty value", clause)
		}
		g.terms = append(g.terms, gateTerm{field: field, value: value, negate: op == "!="})
	}
	return g, nil
}

// Eval reports whether the event satisfies every term of the gate.
func (g Gate) Eval(ev Event) bool {
	for _, t := range g.terms {
		var actual string
		switch t.field {
		case "event":
			actual = string(ev.Type)
		case "branch":
			actual = ev.Branch
		}
		match := actual == t.value
		if t.negate {
			match = !match
		}
		if !match {
			return false
		}
	}
	return true
}

// Empty reports whether the gate has no terms.
func (g Gate) Empty() bool { return len(g.terms) == 0 }

// RequiresEvent reports whether the gate pins the event type to exactly want.
func (g Gate) RequiresEvent(want Type) bool {
	for _, t := range g.terms {
		if t.field == "event" && !t.negate && t.value == string(want) {
			return true
		}
	}
	return false
}

// RequiresBranch reports whether the gate pins the branch to exactly want.
func (g Gate) RequiresBranch(want string) bool {
	for _, t := range g.terms {
		if t.field == "branch" && !t.negate && t.value == want {
			return true
		}
	}
	return false
}

func (g Gate) String() string { return g.raw }
