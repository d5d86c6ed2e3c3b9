package feed

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// DefaultExportName is the file name Export suggests when none is given.
const DefaultExportName = "transformed.xml"

// State is the lifecycle position of a Manager.
type State int

const (
	// StateEmpty means no feed has been loaded.
	StateEmpty State = iota
	// StateLoaded means a feed is held and no rules were applied to it yet.
	StateLoaded
	// StateTransformed means rules were applied at least once since the last load.
	StateTransformed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateTransformed:
		return "transformed"
	default:
		return "unknown"
	}
}

// LoadResult is what a successful Load hands back to the caller for building
// a mapping form.
type LoadResult struct {
	Schema     []SchemaEntry
	FieldNames []string
	Items      int
}

// Saver turns serialized output into a stored file. Implementations live
// outside this package (local directory, object storage, memory).
type Saver interface {
	Save(ctx context.Context, name string, data []byte) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithLayout sets the wrapper layout used by Serialize and Export.
func WithLayout(l Layout) Option {
	return func(m *Manager) { m.layout = l }
}

// Manager holds the current feed and drives it through load, apply and
// serialize. It owns its records exclusively and is not safe for concurrent
// use.
type Manager struct {
	feed   *Feed
	state  State
	rules  []Rule
	layout Layout
	log    zerolog.Logger
}

// NewManager returns an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		layout: RSSLayout,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports the lifecycle state.
func (m *Manager) State() State { return m.state }

// Load parses text and replaces whatever was held before. On failure the
// previous feed and state are kept.
func (m *Manager) Load(text string) (LoadResult, error) {
	f, err := Parse(text)
	if err != nil {
		return LoadResult{}, err
	}

	m.feed = f
	m.rules = nil
	m.state = StateLoaded

	m.log.Debug().
		Int("items", len(f.Records)).
		Int("fields", len(f.Schema)).
		Msg("feed loaded")

	return LoadResult{
		Schema:     f.Schema,
		FieldNames: FieldNames(f.Schema),
		Items:      len(f.Records),
	}, nil
}

// Apply runs rules over the loaded records and returns the transformed items.
//
// Every call starts from the parse-time values, so the result reflects exactly
// the given rules and not those of earlier calls. An empty rule list returns
// the current items unchanged without touching the state. Invalid rules are
// reported as *RuleError before any record is modified.
func (m *Manager) Apply(rules []Rule) ([]Item, error) {
	if m.state == StateEmpty {
		return nil, errors.WithStack(ErrNoData)
	}
	if len(rules) == 0 {
		return m.feed.Items(), nil
	}
	for _, r := range rules {
		if err := ValidateRule(r); err != nil {
			return nil, err
		}
	}

	for _, rec := range m.feed.Records {
		rec.revert()
	}
	Apply(m.feed.Records, rules)

	m.rules = append([]Rule(nil), rules...)
	m.state = StateTransformed

	m.log.Debug().
		Int("items", len(m.feed.Records)).
		Int("rules", len(rules)).
		Msg("rules applied")

	return m.feed.Items(), nil
}

// Serialize renders the working records as XML.
func (m *Manager) Serialize() (string, error) {
	if m.state == StateEmpty {
		return "", errors.WithStack(ErrNoData)
	}
	out, err := m.layout.Serialize(m.feed.Records)
	if err != nil {
		return "", err
	}
	m.log.Debug().Int("bytes", len(out)).Msg("feed serialized")
	return out, nil
}

// Export serializes the feed and hands the bytes to saver under fileName, or
// DefaultExportName when fileName is empty.
func (m *Manager) Export(ctx context.Context, fileName string, saver Saver) error {
	if saver == nil {
		return errors.New("export: no saver configured")
	}
	out, err := m.Serialize()
	if err != nil {
		return err
	}
	if fileName == "" {
		fileName = DefaultExportName
	}
	if err := saver.Save(ctx, fileName, []byte(out)); err != nil {
		return errors.Errorf("export %s: %w", fileName, err)
	}
	return nil
}

// Schema returns the schema of the loaded feed, or nil when empty.
func (m *Manager) Schema() []SchemaEntry {
	if m.feed == nil {
		return nil
	}
	return m.feed.Schema
}

// Records returns the held records. Callers must not modify them.
func (m *Manager) Records() []*Record {
	if m.feed == nil {
		return nil
	}
	return m.feed.Records
}

// Rules returns the rules of the last Apply since the last Load.
func (m *Manager) Rules() []Rule {
	return append([]Rule(nil), m.rules...)
}
