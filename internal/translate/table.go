// Package translate maps canonical English phrases to their localised form.
package translate

// Table maps a canonical phrase such as "Status" or "Supersedes #" to its
// translation. A nil Table is valid and translates nothing.
type Table map[string]string

// Lookup returns the translation of phrase, or phrase itself when the table
// has no entry for it.
func (t Table) Lookup(phrase string) string {
	if v, ok := t[phrase]; ok {
		return v
	}
	return phrase
}

// Merge copies every entry of other into t, overwriting existing keys.
func (t Table) Merge(other Table) {
	for k, v := range other {
		t[k] = v
	}
}
