// Package slug derives URL-safe identifiers from human-readable names.
//
// Make is a pure function; Unique adds the collection-level collision rule
// ("-1", "-2", … suffixes) through a caller-supplied existence check so the
// package stays free of any storage concern.
package slug

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmpty is returned when a name normalizes to an empty slug.
var ErrEmpty = errors.New("slug: name has no slug-able characters")

// MaxLen caps generated slugs (matches the varchar(300) slug columns, with
// room left for a numeric suffix).
const MaxLen = 280

// fold decomposes accented runes and drops the combining marks
// ("Café" → "Cafe").
var fold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make lowercases name, folds it to ASCII, replaces every run of
// non-alphanumeric characters with a single hyphen and trims hyphens at both
// ends. Underscores are kept. It returns ErrEmpty when nothing is left.
func Make(name string) (string, error) {
	folded, _, err := transform.String(fold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}

	s := b.String()
	if len(s) > MaxLen {
		s = strings.TrimRight(s[:MaxLen], "-")
	}
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}

// ExistsFunc reports whether candidate is already taken in the target
// collection.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Unique returns base if it is free, otherwise the first of base-1, base-2, …
// that exists reports as free. Errors from exists are returned as is.
func Unique(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	candidate := base
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

// MakeUnique is Make followed by Unique.
func MakeUnique(ctx context.Context, name string, exists ExistsFunc) (string, error) {
	base, err := Make(name)
	if err != nil {
		return "", err
	}
	return Unique(ctx, base, exists)
}
