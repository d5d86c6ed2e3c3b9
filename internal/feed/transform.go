package feed

// Apply evaluates rules against every record and returns records, mutated in
// place.
//
// For each record the rules run in the given order. Each rule first resets its
// target to the record's original value (or removes it when the original had
// none) and then writes its own value. Because every rule re-bases on the
// original data, applying the same rules twice gives the same result as
// applying them once. When the same target appears more than once, the last
// rule wins.
//
// Apply does not validate rules; see ValidateRule.
func Apply(records []*Record, rules []Rule) []*Record {
	for _, rec := range records {
		if rec == nil {
			continue
		}
		for _, rule := range rules {
			if rule == nil {
				continue
			}
			rec.reset(rule.Target())
			rule.eval(rec)
		}
	}
	return records
}
