package quota

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// Subject identifies who a usage counter belongs to: a registered user or an
// anonymous guest keyed by a salted IP hash.
type Subject struct {
	Type enums.SubjectType
	Key  string
}

// UserSubject builds the metering subject for a registered user.
func UserSubject(userID uuid.UUID) Subject {
	return Subject{Type: enums.SubjectTypeUser, Key: userID.String()}
}

// GuestSubject builds the metering subject for an anonymous caller.
func GuestSubject(hashedKey string) Subject {
	return Subject{Type: enums.SubjectTypeGuest, Key: hashedKey}
}

// IsZero reports whether the subject is unset.
func (s Subject) IsZero() bool {
	return s.Key == "" || !s.Type.IsValid()
}

// PeriodKey renders the UTC calendar month a usage counter belongs to.
// Counters for past months are simply never touched again.
func PeriodKey(now time.Time) string {
	return now.UTC().Format("2006-01")
}
