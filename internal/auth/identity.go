package auth

// Identity is the verified result of authenticating a bearer credential. It
// is constructed once per request and read-only from then on.
type Identity struct {
	Subject string
	Scopes  []string
	Roles   []string
}
