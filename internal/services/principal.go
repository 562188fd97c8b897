package services

// Principal is the identity behind a request. The zero value is anonymous.
type Principal struct {
	UserID   string
	Username string
	IsStaff  bool
	// TokenID is the jti of the access token the principal authenticated with.
	TokenID string
}

// Anonymous is the principal of requests without (valid) credentials.
var Anonymous = Principal{}

// Authenticated reports whether the principal is a known user.
func (p Principal) Authenticated() bool { return p.UserID != "" }

func requireUser(p Principal) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

func requireStaff(p Principal) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if !p.IsStaff {
		return ErrPermission
	}
	return nil
}
