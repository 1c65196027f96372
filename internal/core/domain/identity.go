package domain

// Role is the role encoded in a verified credential.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
)

// IsValid reports whether the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return true
	default:
		return false
	}
}

// IsStaff reports whether the role belongs to the restaurant side.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff
}

// Domain is one of the two isolated broadcast scopes.
type Domain string

const (
	DomainAdmin    Domain = "admin"
	DomainCustomer Domain = "customer"
)

// IsValid reports whether the domain is known.
func (d Domain) IsValid() bool {
	return d == DomainAdmin || d == DomainCustomer
}

// Opposite returns the other trust domain.
func (d Domain) Opposite() Domain {
	if d == DomainAdmin {
		return DomainCustomer
	}
	return DomainAdmin
}

// Identity is the projection of an external user or staff record that a
// connection carries for its whole lifetime.
type Identity struct {
	SubjectID   string `json:"subjectId"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName,omitempty"`
}

// IsStaff reports whether the identity acts on the restaurant side.
func (i Identity) IsStaff() bool {
	return i.Role.IsStaff()
}

// IsCustomer reports whether the identity is a customer.
func (i Identity) IsCustomer() bool {
	return i.Role == RoleCustomer
}
