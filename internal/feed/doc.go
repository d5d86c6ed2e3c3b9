// Package feed is the field-mapping core: it parses a flat XML item list into
// records, derives a schema from the field nodes it saw, applies mapping rules
// to the records and serializes the result back into the same item-list shape.
//
// The package is synchronous and performs no I/O of its own. Retrieving the
// source document and saving the output are collaborator concerns (see the
// source and export packages); a Manager instance is not safe for concurrent
// use and callers are expected to serialize Load, Apply and Serialize.
package feed
