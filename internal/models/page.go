package models

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// NormalizePage clamps 1-based paging parameters to sane values.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// HasMore reports whether items exist past the given page.
func HasMore(page, limit, total int) bool {
	return page*limit < total
}
