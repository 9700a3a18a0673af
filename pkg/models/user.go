package models

// UserRole is the permission tier of a support user.
type UserRole string

const (
	RoleAdministrator UserRole = "ADMINISTRATOR"
	RoleManager       UserRole = "MANAGER"
	// RoleAttendant is the lowest tier; attendants may be restricted to
	// their own and unassigned conversations by company policy.
	RoleAttendant UserRole = "ATTENDANT"
)

// AuthUser is the identity the engine acts as. It carries no credentials;
// authentication material lives outside this module.
type AuthUser struct {
	ID        string
	CompanyID string
	Name      string
	Email     string
	Role      UserRole
}
