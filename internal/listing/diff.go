package listing

import "internwatch/internal/domain"

// Diff returns the listings of current whose (company, role) pair does not
// appear in previous, in the order of current. Links are ignored. Neither
// input is modified.
func Diff(current, previous []domain.Listing) []domain.Listing {
	seen := make(map[domain.Key]struct{}, len(previous))
	for _, l := range previous {
		seen[l.Key()] = struct{}{}
	}

	fresh := make([]domain.Listing, 0)
	for _, l := range current {
		if _, ok := seen[l.Key()]; !ok {
			fresh = append(fresh, l)
		}
	}
	return fresh
}
