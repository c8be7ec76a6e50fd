package rbac

// Role is the marketplace role carried in the auth token.
type Role string

// 角色常量
const (
	RoleCompany    Role = "company"
	RoleContractor Role = "contractor"
	RoleAdmin      Role = "admin"
)

// 权限常量
const (
	PermissionCreateProject   = "project:create"
	PermissionCreateBid       = "bid:create"
	PermissionDecideBid       = "bid:decide"
	PermissionCreateMilestone = "milestone:create"
	PermissionEditMilestone   = "milestone:edit"
	PermissionMoveMilestone   = "milestone:transition"
	PermissionReadContract    = "contract:read"
	PermissionReplayOutbox    = "outbox:replay"
)

// 角色权限映射；资源归属（是否项目所有者/中标人）由业务层再校验
var rolePermissions = map[Role][]string{
	RoleCompany: {
		PermissionCreateProject,
		PermissionDecideBid,
		PermissionCreateMilestone,
		PermissionEditMilestone,
		PermissionMoveMilestone,
		PermissionReadContract,
	},
	RoleContractor: {
		PermissionCreateBid,
		PermissionMoveMilestone,
		PermissionReadContract,
	},
	RoleAdmin: {
		PermissionCreateProject,
		PermissionDecideBid,
		PermissionCreateMilestone,
		PermissionEditMilestone,
		PermissionMoveMilestone,
		PermissionReadContract,
		PermissionReplayOutbox,
	},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role Role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 同 HasPermission，但返回错误便于处理
func CheckPermission(userID int64, role Role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int64
	Role       Role
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + string(e.Role) + " cannot " + e.Permission
}
