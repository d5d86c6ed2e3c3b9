package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(fields ...string) *Record {
	fs := make([]Field, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		fs = append(fs, Field{Name: fields[i], Value: fields[i+1]})
	}
	return NewRecord(fs)
}

// TestApply_Rename verifies the target receives the original source value and
// the source stays in place.
func TestApply_Rename(t *testing.T) {
	t.Parallel()

	r := record("title", "Red Shoe")
	Apply([]*Record{r}, []Rule{Rename{TargetField: "g:title", SourceField: "title"}})

	assert.Equal(t, "Red Shoe", r.Get("g:title"))
	assert.Equal(t, "Red Shoe", r.Get("title"))
	assert.Equal(t, []string{"title", "g:title"}, r.Keys())
}

// TestApply_RenameMissingSource verifies a missing source leaves the target in
// its reset state instead of creating it.
func TestApply_RenameMissingSource(t *testing.T) {
	t.Parallel()

	r := record("title", "x")
	Apply([]*Record{r}, []Rule{Rename{TargetField: "g:brand", SourceField: "brand"}})

	_, ok := r.Lookup("g:brand")
	assert.False(t, ok)

	r2 := record("g:brand", "Acme")
	Apply([]*Record{r2}, []Rule{Rename{TargetField: "g:brand", SourceField: "brand"}})
	assert.Equal(t, "Acme", r2.Get("g:brand"))
}

// TestApply_RenameReadsOriginal verifies chained rules do not see each other's
// output.
func TestApply_RenameReadsOriginal(t *testing.T) {
	t.Parallel()

	r := record("a", "1")
	Apply([]*Record{r}, []Rule{
		Static{TargetField: "a", Value: "changed"},
		Rename{TargetField: "b", SourceField: "a"},
	})

	assert.Equal(t, "changed", r.Get("a"))
	assert.Equal(t, "1", r.Get("b"))
}

// TestApply_Static verifies a literal value is written to every record.
func TestApply_Static(t *testing.T) {
	t.Parallel()

	recs := []*Record{record("id", "1"), record("id", "2")}
	Apply(recs, []Rule{Static{TargetField: "g:condition", Value: "new"}})

	for _, r := range recs {
		assert.Equal(t, "new", r.Get("g:condition"))
	}
}

// TestApply_Combine covers the join rules: literals, missing fields and
// separators only between present values.
func TestApply_Combine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		rec   *Record
		parts []Part
		sep   string
		want  string
	}{
		{
			name:  "fields and literal",
			rec:   record("brand", "Acme", "title", "Shoe"),
			parts: []Part{FieldPart("brand"), LiteralPart("-"), FieldPart("title")},
			sep:   " ",
			want:  "Acme - Shoe",
		},
		{
			name:  "missing field dropped",
			rec:   record("title", "Shoe"),
			parts: []Part{FieldPart("brand"), FieldPart("title")},
			sep:   " | ",
			want:  "Shoe",
		},
		{
			name:  "empty separator",
			rec:   record("a", "x", "b", "y"),
			parts: []Part{FieldPart("a"), FieldPart("b")},
			want:  "xy",
		},
		{
			name:  "nothing present",
			rec:   record("a", "x"),
			parts: []Part{FieldPart("b"), FieldPart("c")},
			sep:   ",",
			want:  "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			Apply([]*Record{tc.rec}, []Rule{Combine{TargetField: "out", Parts: tc.parts, Separator: tc.sep}})
			v, ok := tc.rec.Lookup("out")
			require.True(t, ok)
			assert.Equal(t, tc.want, v)
		})
	}
}

// TestApply_Empty verifies the target exists with an empty value.
func TestApply_Empty(t *testing.T) {
	t.Parallel()

	r := record("price", "10")
	Apply([]*Record{r}, []Rule{Empty{TargetField: "price"}})

	v, ok := r.Lookup("price")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

// TestApply_Idempotent verifies applying the same rules twice gives the same
// working state as applying them once.
func TestApply_Idempotent(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		Rename{TargetField: "g:id", SourceField: "id"},
		Combine{TargetField: "id", Parts: []Part{LiteralPart("sku"), FieldPart("id")}, Separator: "-"},
		Static{TargetField: "g:availability", Value: "in stock"},
	}
	once := record("id", "7")
	twice := record("id", "7")

	Apply([]*Record{once}, rules)
	Apply([]*Record{twice}, rules)
	Apply([]*Record{twice}, rules)

	assert.Equal(t, once.Item(), twice.Item())
	assert.Equal(t, "sku-7", twice.Get("id"))
	assert.Equal(t, "7", twice.Get("g:id"))
}

// TestApply_NilRuleSkipped verifies a nil entry is ignored.
func TestApply_NilRuleSkipped(t *testing.T) {
	t.Parallel()

	r := record("a", "1")
	Apply([]*Record{r, nil}, []Rule{nil, Static{TargetField: "b", Value: "2"}})
	assert.Equal(t, "2", r.Get("b"))
}

// TestValidateRule covers the rejected shapes.
func TestValidateRule(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateRule(Static{TargetField: "g:price", Value: "1"}))

	for _, r := range []Rule{
		nil,
		Static{TargetField: ""},
		Static{TargetField: "1abc"},
		Empty{TargetField: "has space"},
		Rename{TargetField: "x"},
	} {
		err := ValidateRule(r)
		var re *RuleError
		assert.ErrorAs(t, err, &re, "rule %#v", r)
	}
}

// TestRuleSet_PutReplacesInPlace verifies one rule per target and stable order.
func TestRuleSet_PutReplacesInPlace(t *testing.T) {
	t.Parallel()

	s := NewRuleSet(
		Static{TargetField: "a", Value: "1"},
		Static{TargetField: "b", Value: "2"},
		Static{TargetField: "a", Value: "3"},
	)
	require.Equal(t, 2, s.Len())
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, Static{TargetField: "a", Value: "3"}, got)
	assert.Equal(t, "a", s.Rules()[0].Target())

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	got, ok = s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.Target())
	assert.Equal(t, 1, s.Len())
}
