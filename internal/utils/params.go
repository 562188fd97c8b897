// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// ParseID parses a positive decimal database ID. Surrounding whitespace,
// signs, zero and values that overflow uint are rejected.
//
// Example:
//
//	id, ok := utils.ParseID("42") // 42, true
//	_, ok = utils.ParseID("0")    // 0, false
//	_, ok = utils.ParseID("+7")   // 0, false
func ParseID(s string) (uint, bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, strconv.IntSize)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// CleanSlug normalizes a slug taken from a path or query parameter: it trims
// surrounding whitespace and lowercases it. Slugs are always stored lowercase.
func CleanSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
