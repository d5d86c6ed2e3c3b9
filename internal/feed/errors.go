package feed

import (
	"gitlab.com/tozd/go/errors"
)

// ErrNoData is returned by Manager operations that need a loaded feed.
var ErrNoData = errors.Base("no feed loaded")

// ParseError reports a document that could not be turned into records: it is
// not well-formed XML or it holds no <item> elements.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse feed: " + e.Reason + ": " + e.Err.Error()
	}
	return "parse feed: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// RuleError reports a mapping rule that cannot be evaluated or serialized,
// such as one with an empty target.
type RuleError struct {
	Target string
	Reason string
}

func (e *RuleError) Error() string {
	return "rule for " + quoteTarget(e.Target) + ": " + e.Reason
}

func quoteTarget(t string) string {
	if t == "" {
		return "<empty target>"
	}
	return `"` + t + `"`
}
