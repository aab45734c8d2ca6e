package identity

const RoleAdmin = "admin"

// Identity is the verified caller passed down from the authentication
// boundary. The core never inspects anything else about the session.
type Identity struct {
	UserID string
	Roles  []string
}

func (id Identity) IsAdmin() bool {
	for _, r := range id.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}
