// Package access computes the capability tier a session holds on a record.
package access

// Session describes the identity the aggregation runs on behalf of.
type Session interface {
	CurrentUserID() (string, bool)
	CurrentUserDisplayName() (string, bool)
	HasAdminCredentials() bool
}

// StaticSession is a fixed Session value.
type StaticSession struct {
	UserID      string `json:"user_id" yaml:"user_id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Admin       bool   `json:"admin" yaml:"admin"`
}

// CurrentUserID returns the user id, reporting false when it is unset.
func (s StaticSession) CurrentUserID() (string, bool) { return s.UserID, s.UserID != "" }

// CurrentUserDisplayName returns the display name, reporting false when it is unset.
func (s StaticSession) CurrentUserDisplayName() (string, bool) {
	return s.DisplayName, s.DisplayName != ""
}

// HasAdminCredentials reports whether the session was verified as an administrator.
func (s StaticSession) HasAdminCredentials() bool { return s.Admin }

// Anonymous is a session with no identity and no admin rights.
var Anonymous Session = StaticSession{}
