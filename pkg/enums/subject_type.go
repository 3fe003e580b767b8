package enums

import "fmt"

// SubjectType tags the quota-tracked entity kind. Users are keyed by id,
// anonymous guests by a salted hash of their client IP.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "user"
	SubjectTypeGuest SubjectType = "guest"
)

var validSubjectTypes = []SubjectType{
	SubjectTypeUser,
	SubjectTypeGuest,
}

// String implements fmt.Stringer.
func (s SubjectType) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubjectType) IsValid() bool {
	for _, candidate := range validSubjectTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubjectType converts raw input into a SubjectType.
func ParseSubjectType(value string) (SubjectType, error) {
	for _, candidate := range validSubjectTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subject type %q", value)
}
