package depquery

import "strings"

// Query is the (name, version) filter sent to the dependency search
// endpoint. Either field may be empty.
type Query struct {
	Name    string
	Version string
}

// IsZero reports whether the query carries neither a name nor a version.
func (q Query) IsZero() bool {
	return q.Name == "" && q.Version == ""
}

func (q Query) String() string {
	return strings.TrimSpace(q.Name + " " + q.Version)
}

// rangeOperators are the version-range prefixes that show up in
// spreadsheet exports ("==1.2.3", "^2.0.0", "~= 0.9").
var rangeOperators = []string{"==", ">=", "<=", "~=", "~", "^", "="}

// Clean canonicalizes a raw CSV cell into a dependency name or version:
// surrounding whitespace and stray commas are trimmed, and a leading
// version-range operator is stripped. Returns "" when nothing usable
// remains. Clean is idempotent.
func Clean(raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.Trim(v, ",")
	v = strings.TrimSpace(v)

	for _, op := range rangeOperators {
		if strings.HasPrefix(v, op) {
			v = strings.TrimLeft(v, "=<>~^ ")
			v = strings.TrimSpace(v)
			break
		}
	}
	return v
}
