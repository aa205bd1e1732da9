package domain

// ActorRole is the role a caller acts under.
type ActorRole string

const (
	RoleRequester ActorRole = "requester"
	RoleDriver    ActorRole = "driver"
)

// ParseActorRole matches s exactly against the known roles.
func ParseActorRole(s string) (ActorRole, bool) {
	switch r := ActorRole(s); r {
	case RoleRequester, RoleDriver:
		return r, true
	}
	return "", false
}
