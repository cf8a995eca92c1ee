package domain

import (
	"crypto/sha256"
	"fmt"
)

// MaskType is a column masking strategy applied to query results before they
// leave the server. The zero value means "no mask".
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid reports whether m is a recognised masking strategy. The empty
// string is valid and means no masking.
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// Apply transforms a value according to the mask type. Masked values may
// change type (hash and partial always yield strings). MaskNull returns nil,
// indistinguishable from SQL NULL.
func (m MaskType) Apply(value any) any {
	if value == nil {
		return nil
	}
	switch m {
	case MaskRedact:
		return "***"
	case MaskHash:
		sum := sha256.Sum256([]byte(fmt.Sprintf("%v", value)))
		return fmt.Sprintf("%x", sum)
	case MaskPartial:
		return partialMask(fmt.Sprintf("%v", value))
	case MaskNull:
		return nil
	default:
		return value
	}
}

// partialMask reveals only the last 4 characters. Multi-byte strings are
// handled rune-wise.
func partialMask(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	masked := make([]rune, len(runes))
	for i := range masked {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

// MaskRows applies column masks to result rows in place. Matching is by
// column name only, with no table qualification.
func MaskRows(rows []map[string]any, masks map[string]MaskType) {
	if len(masks) == 0 {
		return
	}
	for _, row := range rows {
		for col, mask := range masks {
			if val, ok := row[col]; ok {
				row[col] = mask.Apply(val)
			}
		}
	}
}
