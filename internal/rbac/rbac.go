package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleHR     Role = "hr"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionSubmit  Action = "submit"
	ActionDecide  Action = "decide"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleHR:
		return action == ActionRead || action == ActionComment || action == ActionSubmit || action == ActionDecide
	case RoleMember:
		return action == ActionRead || action == ActionComment || action == ActionSubmit || action == ActionDecide
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleMember, RoleHR, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}
