package dto

import (
	"strconv"
	"strings"
)

// FormatID renders a storage id the way clients see it.
func FormatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// FormatOptionalID renders a nullable id, returning nil when absent.
func FormatOptionalID(id *uint) *string {
	if id == nil {
		return nil
	}
	value := FormatID(*id)
	return &value
}

// ParseID converts a client supplied id. Anything that is not a positive
// decimal integer yields false so callers can treat it as "not found".
func ParseID(raw string) (uint, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}
