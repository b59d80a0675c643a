package authservice

import "github.com/ichigozero/taskgate/authsvc"

type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Authorize decides whether a may perform op on a record owned by ownerID.
// Admins may do anything; everyone else only touches their own records.
func Authorize(a authsvc.Identity, op Operation, ownerID string) error {
	if a.IsAdmin() {
		return nil
	}
	if a.Subject != "" && a.Subject == ownerID {
		return nil
	}
	return authsvc.ErrAccessDenied
}
