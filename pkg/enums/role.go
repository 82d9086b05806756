package enums

import "slices"

// Role is the role claim supplied by the identity provider.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

var validRoles = []Role{
	RoleBuyer,
	RoleSeller,
	RoleAdmin,
}

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool { return slices.Contains(validRoles, r) }

func ParseRole(value string) (Role, error) {
	return parse(validRoles, "role", value)
}
