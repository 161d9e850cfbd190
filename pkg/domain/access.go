package domain

// AccessLevel is the capability tier granted on an entity. Levels are totally
// ordered: AccessUser < AccessModerator < AccessAdmin.
type AccessLevel int

const (
	AccessUser AccessLevel = iota
	AccessModerator
	AccessAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case AccessAdmin:
		return "admin"
	case AccessModerator:
		return "moderator"
	default:
		return "user"
	}
}

// AtLeast reports whether l grants at least the capabilities of other.
func (l AccessLevel) AtLeast(other AccessLevel) bool { return l >= other }

// MarshalText encodes the level by name.
func (l AccessLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText decodes a level name; unknown names decode to AccessUser.
func (l *AccessLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "admin":
		*l = AccessAdmin
	case "moderator":
		*l = AccessModerator
	default:
		*l = AccessUser
	}
	return nil
}
