package feed

import (
	"strings"
	"unicode"
)

// Kind names a mapping rule variant.
type Kind string

const (
	KindRename  Kind = "rename"
	KindStatic  Kind = "static"
	KindCombine Kind = "combine"
	KindEmpty   Kind = "empty"
)

// Rule derives the value of one target field. The set of variants is closed:
// Rename, Static, Combine and Empty.
type Rule interface {
	Target() string
	Kind() Kind

	// eval writes the rule's value into r. The target has already been reset
	// to its original state when eval runs.
	eval(r *Record)
}

// Rename copies the original value of SourceField into TargetField. A source
// missing from the original record leaves the target in its reset state.
type Rename struct {
	TargetField string
	SourceField string
}

func (x Rename) Target() string { return x.TargetField }
func (x Rename) Kind() Kind     { return KindRename }

func (x Rename) eval(r *Record) {
	if v, ok := r.Original(x.SourceField); ok {
		r.Set(x.TargetField, v)
	}
}

// Static writes a literal value.
type Static struct {
	TargetField string
	Value       string
}

func (x Static) Target() string { return x.TargetField }
func (x Static) Kind() Kind     { return KindStatic }
func (x Static) eval(r *Record) { r.Set(x.TargetField, x.Value) }

// Part is one piece of a Combine rule: either the original value of a field
// or, when Literal is set, the text itself.
type Part struct {
	Literal bool
	Value   string
}

// FieldPart references the original value of a field.
func FieldPart(name string) Part { return Part{Value: name} }

// LiteralPart is fixed text.
func LiteralPart(text string) Part { return Part{Literal: true, Value: text} }

// Combine joins the resolved parts with Separator. Parts that resolve to ""
// are dropped before joining, so separators only ever sit between two present
// values. With nothing left the target becomes "".
type Combine struct {
	TargetField string
	Parts       []Part
	Separator   string
}

func (x Combine) Target() string { return x.TargetField }
func (x Combine) Kind() Kind     { return KindCombine }

func (x Combine) eval(r *Record) {
	vals := make([]string, 0, len(x.Parts))
	for _, p := range x.Parts {
		v := p.Value
		if !p.Literal {
			v, _ = r.Original(p.Value)
		}
		if v == "" {
			continue
		}
		vals = append(vals, v)
	}
	r.Set(x.TargetField, strings.Join(vals, x.Separator))
}

// Empty writes an explicit empty string.
type Empty struct {
	TargetField string
}

func (x Empty) Target() string { return x.TargetField }
func (x Empty) Kind() Kind     { return KindEmpty }
func (x Empty) eval(r *Record) { r.Set(x.TargetField, "") }

// ValidateRule reports rules that cannot be applied or serialized.
func ValidateRule(rule Rule) error {
	if rule == nil {
		return &RuleError{Reason: "nil rule"}
	}
	target := rule.Target()
	if target == "" {
		return &RuleError{Reason: "target is empty"}
	}
	if !isXMLName(target) {
		return &RuleError{Target: target, Reason: "target is not a valid XML element name"}
	}
	if rn, ok := rule.(Rename); ok && rn.SourceField == "" {
		return &RuleError{Target: target, Reason: "rename needs a source field"}
	}
	return nil
}

// RuleSet holds at most one rule per target. Putting a rule for a target that
// is already present replaces it in place; otherwise insertion order is kept.
type RuleSet struct {
	rules []Rule
	index map[string]int
}

// NewRuleSet builds a set from rules, later rules replacing earlier ones with
// the same target.
func NewRuleSet(rules ...Rule) *RuleSet {
	s := &RuleSet{index: make(map[string]int, len(rules))}
	for _, r := range rules {
		s.Put(r)
	}
	return s
}

// Put adds or replaces the rule for rule.Target().
func (s *RuleSet) Put(rule Rule) {
	if rule == nil {
		return
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[rule.Target()]; ok {
		s.rules[i] = rule
		return
	}
	s.index[rule.Target()] = len(s.rules)
	s.rules = append(s.rules, rule)
}

// Get returns the rule for target.
func (s *RuleSet) Get(target string) (Rule, bool) {
	i, ok := s.index[target]
	if !ok {
		return nil, false
	}
	return s.rules[i], true
}

// Remove drops the rule for target and reports whether one was present.
func (s *RuleSet) Remove(target string) bool {
	i, ok := s.index[target]
	if !ok {
		return false
	}
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	delete(s.index, target)
	for j := i; j < len(s.rules); j++ {
		s.index[s.rules[j].Target()] = j
	}
	return true
}

// Rules returns the rules in order.
func (s *RuleSet) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Len returns the number of rules.
func (s *RuleSet) Len() int { return len(s.rules) }

// isXMLName is a conservative check for element names we can emit verbatim.
func isXMLName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_' || c == ':' || unicode.IsLetter(c):
		case i > 0 && (c == '-' || c == '.' || unicode.IsDigit(c)):
		default:
			return false
		}
	}
	return true
}
