package domain

// Kind names one of the three entity kinds.
type Kind string

const (
	KindHabit   Kind = "habit"
	KindGoal    Kind = "goal"
	KindJournal Kind = "journal"
)

// Kinds lists every entity kind in display order.
var Kinds = []Kind{KindHabit, KindGoal, KindJournal}

// ParseKind accepts singular and plural spellings.
func ParseKind(value string) (Kind, bool) {
	switch value {
	case "habit", "habits":
		return KindHabit, true
	case "goal", "goals":
		return KindGoal, true
	case "journal", "journal_entries", "entries":
		return KindJournal, true
	default:
		return "", false
	}
}
