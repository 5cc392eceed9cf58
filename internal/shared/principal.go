package shared

// PrincipalSource identifies how a principal was authenticated.
type PrincipalSource string

const (
	// SourceSession marks a principal resolved from a cookie session.
	SourceSession PrincipalSource = "session"
	// SourceAPIKey marks a principal resolved from an API key.
	SourceAPIKey PrincipalSource = "api_key"
)

// Principal describes the authenticated actor making a request. It is
// re-derived at login and immutable for the lifetime of a session.
type Principal struct {
	UserID  int64
	Email   string
	RoleID  int64
	IsAdmin bool
	Source  PrincipalSource
}
