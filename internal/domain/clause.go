package domain

import "strings"

// NormalizeClauseName reduces a clause name to its comparison form: lowercase
// with spaces, hyphens and underscores removed, so "Non-Compete" and
// "non compete" collide.
func NormalizeClauseName(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, name)
}
