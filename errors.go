package mediabank

import "errors"

var (
	// ErrNoThemes is returned by New when the theme set contains no
	// enabled theme with media.
	ErrNoThemes = errors.New("mediabank: no enabled themes with media")

	// ErrBadThemeIndex is returned for a theme index outside the
	// enabled range.
	ErrBadThemeIndex = errors.New("mediabank: theme index out of range")

	// ErrEmptyCollection is returned when an operation needs items
	// from a collection that has none.
	ErrEmptyCollection = errors.New("mediabank: collection has no items")

	// ErrNotReady is returned by EnsureReady when the bank does not
	// become ready within the timeout.
	ErrNotReady = errors.New("mediabank: media not ready")

	// ErrStopped is returned from operations on a closed bank.
	ErrStopped = errors.New("mediabank: bank is closed")
)
