package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// PolicyViolation is returned when a statement is rejected for the active
// access tier. It is always surfaced to the caller and never retried with
// altered tier assumptions.
type PolicyViolation struct {
	Tier     AccessTier
	Keyword  string
	Category StatementCategory
	Detail   string
}

func (e *PolicyViolation) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("statement blocked in %s tier: %s", e.Tier, e.Detail)
	}
	switch e.Category {
	case CategoryWrite:
		return fmt.Sprintf("write operation %q is not allowed in %s tier", e.Keyword, e.Tier)
	case CategoryDangerous:
		return fmt.Sprintf("dangerous operation %q is not allowed in %s tier", e.Keyword, e.Tier)
	default:
		return fmt.Sprintf("unsupported operation %q in %s tier", e.Keyword, e.Tier)
	}
}

// dangerousClausePatterns match write/DDL clauses embedded anywhere inside a
// SELECT statement: subqueries, comments, or a smuggled second statement that
// a leading-keyword check alone would miss. Matching runs against the
// upper-cased statement and tolerates any amount of whitespace between the
// clause words.
var dangerousClausePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bDROP\s+TABLE\b`),
	regexp.MustCompile(`\bTRUNCATE\s+TABLE\b`),
	regexp.MustCompile(`\bDELETE\s+FROM\b`),
	regexp.MustCompile(`\bINSERT\s+INTO\b`),
	regexp.MustCompile(`\bUPDATE\s+\w+\s+SET\b`),
	regexp.MustCompile(`\bCREATE\s+TABLE\b`),
	regexp.MustCompile(`\bALTER\s+TABLE\b`),
}

// TierValidator is a textual, best-effort SQL policy gate. It classifies a
// statement by its leading keyword and scans the raw text for forbidden
// clauses. It is NOT a SQL parser: a dangerous keyword inside a string
// literal is rejected the same as one in executable SQL. That bias
// over-blocks but never under-blocks, and is deliberate.
//
// The validator is pure and stateless; identical (sql, tier) inputs always
// produce the identical verdict, and it is safe for concurrent use.
type TierValidator struct {
	tier AccessTier
}

func NewTierValidator(tier AccessTier) *TierValidator {
	return &TierValidator{tier: tier}
}

// Tier returns the access tier this validator enforces.
func (v *TierValidator) Tier() AccessTier {
	return v.tier
}

// Validate accepts or rejects a statement for the validator's tier.
// A nil return means the statement may be executed.
func (v *TierValidator) Validate(sql string) error {
	if v.tier == FullAccess {
		return nil
	}

	upper := strings.ToUpper(strings.TrimSpace(sql))
	keyword := LeadingKeyword(upper)
	category := Classify(upper)

	switch v.tier {
	case ReadOnly:
		return v.validateReadOnly(upper, keyword, category)
	default:
		return v.validateLimitedWrite(upper, keyword, category)
	}
}

func (v *TierValidator) validateReadOnly(upper, keyword string, category StatementCategory) error {
	if category != CategoryRead {
		return &PolicyViolation{Tier: v.tier, Keyword: keyword, Category: category}
	}

	if keyword == "SELECT" {
		for _, pat := range dangerousClausePatterns {
			if clause := pat.FindString(upper); clause != "" {
				return &PolicyViolation{
					Tier:     v.tier,
					Keyword:  keyword,
					Category: category,
					Detail:   fmt.Sprintf("embedded clause %q is not allowed", clause),
				}
			}
		}
		return nil
	}

	// Other read-shaped statements (WITH, SHOW, EXPLAIN, ...) get the
	// blunter check: any write or dangerous keyword anywhere in the text.
	if kw := containsAnyKeyword(upper, writeKeywords, dangerousKeywords); kw != "" {
		return &PolicyViolation{
			Tier:     v.tier,
			Keyword:  keyword,
			Category: category,
			Detail:   fmt.Sprintf("statement contains forbidden keyword %q", kw),
		}
	}
	return nil
}

func (v *TierValidator) validateLimitedWrite(upper, keyword string, category StatementCategory) error {
	if category != CategoryRead && category != CategoryWrite {
		return &PolicyViolation{Tier: v.tier, Keyword: keyword, Category: category}
	}
	if kw := containsAnyKeyword(upper, dangerousKeywords); kw != "" {
		return &PolicyViolation{
			Tier:     v.tier,
			Keyword:  keyword,
			Category: category,
			Detail:   fmt.Sprintf("statement contains forbidden keyword %q", kw),
		}
	}
	return nil
}

// containsAnyKeyword returns the first forbidden keyword found as a
// substring of the statement. Sets are scanned in sorted order so the
// verdict message is deterministic.
func containsAnyKeyword(upper string, sets ...map[string]bool) string {
	for _, set := range sets {
		for _, kw := range sortedKeys(set) {
			if strings.Contains(upper, kw) {
				return kw
			}
		}
	}
	return ""
}
