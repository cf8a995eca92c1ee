package domain

import (
	"fmt"
	"sort"
	"strings"
)

// AccessTier controls which SQL statement shapes the server will execute.
// Tiers are ordered by permissiveness: ReadOnly < LimitedWrite < FullAccess.
// The tier is fixed at startup and never changes for the lifetime of a
// running instance.
type AccessTier int

const (
	ReadOnly AccessTier = iota
	LimitedWrite
	FullAccess
)

func (t AccessTier) String() string {
	switch t {
	case ReadOnly:
		return "readonly"
	case LimitedWrite:
		return "limited_write"
	case FullAccess:
		return "full_access"
	default:
		return fmt.Sprintf("AccessTier(%d)", int(t))
	}
}

// ParseAccessTier converts a configuration string into an AccessTier.
func ParseAccessTier(s string) (AccessTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "readonly", "read_only":
		return ReadOnly, nil
	case "limited_write":
		return LimitedWrite, nil
	case "full_access":
		return FullAccess, nil
	default:
		return ReadOnly, fmt.Errorf("invalid access tier %q: must be readonly, limited_write, or full_access", s)
	}
}

// AllowsWrite reports whether INSERT/UPDATE statements may be executed.
func (t AccessTier) AllowsWrite() bool {
	return t == LimitedWrite || t == FullAccess
}

// AllowsDangerous reports whether DDL and destructive statements may be executed.
func (t AccessTier) AllowsDangerous() bool {
	return t == FullAccess
}

// StatementCategory classifies a SQL statement by its leading keyword.
// A statement belongs to exactly one category.
type StatementCategory int

const (
	CategoryUnrecognized StatementCategory = iota
	CategoryRead
	CategoryWrite
	CategoryDangerous
)

func (c StatementCategory) String() string {
	switch c {
	case CategoryRead:
		return "read"
	case CategoryWrite:
		return "write"
	case CategoryDangerous:
		return "dangerous"
	default:
		return "unrecognized"
	}
}

// Keyword membership sets. These drive both leading-keyword classification
// and the substring scans in the validator.
var (
	readKeywords = map[string]bool{
		"SELECT": true, "WITH": true, "SHOW": true,
		"DESCRIBE": true, "EXPLAIN": true, "ANALYZE": true,
	}
	writeKeywords = map[string]bool{
		"INSERT": true, "UPDATE": true,
	}
	dangerousKeywords = map[string]bool{
		"DELETE": true, "DROP": true, "CREATE": true, "ALTER": true,
		"TRUNCATE": true, "GRANT": true, "REVOKE": true,
	}
)

// LeadingKeyword returns the first whitespace-delimited token of the
// statement, upper-cased. Empty statements yield "".
func LeadingKeyword(sql string) string {
	fields := strings.Fields(strings.ToUpper(sql))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Classify determines the statement category from its leading keyword.
func Classify(sql string) StatementCategory {
	kw := LeadingKeyword(sql)
	switch {
	case readKeywords[kw]:
		return CategoryRead
	case writeKeywords[kw]:
		return CategoryWrite
	case dangerousKeywords[kw]:
		return CategoryDangerous
	default:
		return CategoryUnrecognized
	}
}

// IsReadStatement reports whether the statement is read-shaped and therefore
// eligible for result caching.
func IsReadStatement(sql string) bool {
	return Classify(sql) == CategoryRead
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
