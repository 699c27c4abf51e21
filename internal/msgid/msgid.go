// Package msgid canonicalizes RFC 5322 message identifiers.
//
// Upstream sources disagree on whether a Message-ID carries its angle brackets:
// SMTP libraries often report the bare id, IMAP envelopes return the wrapped one,
// and URL path parameters may contain either. Storage always uses the wrapped form;
// lookups match any of the variants returned by Variants.
package msgid

import "strings"

// IsBlank reports whether raw contains no identifier at all.
func IsBlank(raw string) bool {
	return Strip(raw) == ""
}

// Strip returns the identifier without surrounding whitespace and without one
// leading "<" and one trailing ">".
func Strip(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return strings.TrimSpace(s)
}

// Canonical returns the bracket-wrapped form used for storage, or an empty
// string for blank input.
func Canonical(raw string) string {
	bare := Strip(raw)
	if bare == "" {
		return ""
	}
	return "<" + bare + ">"
}

// Variants returns the forms a stored id may have been written in: the trimmed
// literal input, the wrapped form and the unwrapped form, without duplicates.
// Blank input yields no variants, so a lookup with them matches nothing.
func Variants(raw string) []string {
	bare := Strip(raw)
	if bare == "" {
		return nil
	}

	candidates := []string{strings.TrimSpace(raw), "<" + bare + ">", bare}
	variants := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		variants = append(variants, c)
	}
	return variants
}

// Equal reports whether a and b name the same message.
func Equal(a, b string) bool {
	sa := Strip(a)
	return sa != "" && sa == Strip(b)
}
