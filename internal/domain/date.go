package domain

import "time"

// DateLayout is the calendar date format used by the record store (yyyy-MM-dd).
const DateLayout = "2006-01-02"

// FormatDate renders t as a calendar date in t's location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeDate reduces a stored date value to its yyyy-MM-dd prefix.
// Date fields come back from the store either as plain dates or as
// "2024-01-10 00:00:00.000Z"; anything that does not start with a valid
// date is returned untouched.
func NormalizeDate(value string) string {
	if len(value) < len(DateLayout) {
		return value
	}
	prefix := value[:len(DateLayout)]
	if _, err := time.Parse(DateLayout, prefix); err != nil {
		return value
	}
	return prefix
}

// ValidDate reports whether value is a yyyy-MM-dd calendar date.
func ValidDate(value string) bool {
	_, err := time.Parse(DateLayout, value)
	return err == nil
}
