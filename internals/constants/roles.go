package constants

import "fmt"

const (
	RoleConstituent = "constituent"
	RoleAdmin       = "admin"
	RoleEvaluator   = "evaluator"
	RoleTrainer     = "trainer"
	RoleVendor      = "vendor"
	RoleSystem      = "system"
)

// Role error message templates
const (
	ErrOnlyAdminsCanAccess = "only administrators may access %s"
	ErrOnlyStaffCanAccess  = "only staff (admin, evaluator, trainer) may access %s"
)

func RoleErrorAdmin(feature string) string {
	return fmt.Sprintf(ErrOnlyAdminsCanAccess, feature)
}

func RoleErrorStaff(feature string) string {
	return fmt.Sprintf(ErrOnlyStaffCanAccess, feature)
}

// ==========================
// Grouped role slices
// ==========================
var (
	AllRoles = []string{
		RoleConstituent,
		RoleAdmin,
		RoleEvaluator,
		RoleTrainer,
		RoleVendor,
		RoleSystem,
	}

	StaffRoles = []string{
		RoleAdmin,
		RoleEvaluator,
		RoleTrainer,
	}

	AdminOnly = []string{
		RoleAdmin,
	}
)

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
