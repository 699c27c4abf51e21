package imap

import "strings"

// ResolveFolder picks the live folder for a ranked list of candidate names.
//
// Candidates are tried in order against the available folders, first by
// case-insensitive exact match, then by case-insensitive substring. The second
// return value is false when nothing matched.
func ResolveFolder(available []string, candidates []string) (string, bool) {
	for _, candidate := range candidates {
		for _, name := range available {
			if strings.EqualFold(name, candidate) {
				return name, true
			}
		}
	}

	for _, candidate := range candidates {
		needle := strings.ToLower(candidate)
		for _, name := range available {
			if strings.Contains(strings.ToLower(name), needle) {
				return name, true
			}
		}
	}

	return "", false
}

// OrderedFolders returns candidates reordered so that names present on the server
// come first (using the server's spelling), followed by the remaining candidates.
// Appends walk this list and stop at the first folder that accepts the message.
func OrderedFolders(available []string, candidates []string) []string {
	ordered := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	add := func(name string) {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		ordered = append(ordered, name)
	}

	for _, candidate := range candidates {
		for _, name := range available {
			if strings.EqualFold(name, candidate) {
				add(name)
			}
		}
	}
	if resolved, ok := ResolveFolder(available, candidates); ok {
		add(resolved)
	}
	for _, candidate := range candidates {
		add(candidate)
	}
	return ordered
}
