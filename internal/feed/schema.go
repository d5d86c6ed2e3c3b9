package feed

// SchemaEntry describes one field name seen in the source feed.
type SchemaEntry struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	HelpText string `json:"help_text,omitempty"`
}

// FieldNames returns the entry names in schema order.
func FieldNames(schema []SchemaEntry) []string {
	out := make([]string, 0, len(schema))
	for _, e := range schema {
		out = append(out, e.Name)
	}
	return out
}

// fieldNode is a field element as it appeared in the document, attributes
// included. Nodes without text still take part in the schema.
type fieldNode struct {
	name        string
	value       string
	required    bool
	description string
}

type itemNode struct {
	fields []fieldNode
}

// extractSchema scans every field node once, in document order. Entries are
// ordered by first occurrence; Required is set when any occurrence carries the
// attribute and HelpText keeps the first non-empty description.
func extractSchema(items []itemNode) []SchemaEntry {
	index := make(map[string]int)
	var out []SchemaEntry

	for _, it := range items {
		for _, f := range it.fields {
			i, ok := index[f.name]
			if !ok {
				i = len(out)
				index[f.name] = i
				out = append(out, SchemaEntry{Name: f.name})
			}
			e := &out[i]
			if f.required {
				e.Required = true
			}
			if e.HelpText == "" && f.description != "" {
				e.HelpText = f.description
			}
		}
	}
	return out
}
