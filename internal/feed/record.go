package feed

// Field is one name/value pair, kept in document order.
type Field struct {
	Name  string
	Value string
}

// Item is a detached snapshot of a record's working fields in key order.
type Item []Field

// Value returns the value stored under name.
func (it Item) Value(name string) (string, bool) {
	for _, f := range it {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Record is one parsed <item>.
//
// It holds two views of the same fields:
//   - original: the values seen at parse time, never modified afterwards
//   - current: the working copy mapping rules write into
//
// Reading an absent key from either view yields "" and never fails. Keys of
// the working copy keep their insertion order, which is the order Serialize
// emits them in.
type Record struct {
	original map[string]string
	current  map[string]string
	order    []string
}

// NewRecord builds a record whose original and working values both equal
// fields. A repeated name keeps its first position and its last value.
func NewRecord(fields []Field) *Record {
	r := &Record{
		original: make(map[string]string, len(fields)),
		current:  make(map[string]string, len(fields)),
		order:    make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		r.original[f.Name] = f.Value
		r.Set(f.Name, f.Value)
	}
	return r
}

// Get returns the working value of name, or "" when absent.
func (r *Record) Get(name string) string {
	return r.current[name]
}

// Lookup returns the working value of name and whether the key exists.
func (r *Record) Lookup(name string) (string, bool) {
	v, ok := r.current[name]
	return v, ok
}

// Original returns the parse-time value of name and whether it existed.
func (r *Record) Original(name string) (string, bool) {
	v, ok := r.original[name]
	return v, ok
}

// Set writes a working value. New keys are appended to the key order.
func (r *Record) Set(name, value string) {
	if _, ok := r.current[name]; !ok {
		r.order = append(r.order, name)
	}
	r.current[name] = value
}

// Keys returns the working keys in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of working keys.
func (r *Record) Len() int { return len(r.order) }

// Item returns the working fields in key order, empty values included.
func (r *Record) Item() Item {
	out := make(Item, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, Field{Name: k, Value: r.current[k]})
	}
	return out
}

// reset puts name back to its original value, or removes it when the
// original record never had it.
func (r *Record) reset(name string) {
	if v, ok := r.original[name]; ok {
		r.Set(name, v)
		return
	}
	if _, ok := r.current[name]; !ok {
		return
	}
	delete(r.current, name)
	for i, k := range r.order {
		if k == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// revert discards every working change.
func (r *Record) revert() {
	for _, k := range r.Keys() {
		r.reset(k)
	}
}
