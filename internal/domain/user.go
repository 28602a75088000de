package domain

// Role identifies which kind of caller is acting on a booking.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleDriver || r == RoleAdmin
}

// Actor is the caller identity established by the external auth layer.
type Actor struct {
	ID   string
	Role Role
}

// User represents a customer, driver or admin in the directory.
type User struct {
	ID   string
	Name string
	Role Role
}
