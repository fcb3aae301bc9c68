package rbac

import "slices"

// 任务权限
const (
	PermissionCreateTask = "task:create"
	PermissionReadTask   = "task:read"
	PermissionUpdateTask = "task:update"
	PermissionDeleteTask = "task:delete"

	// 查看 outbox / 重放失败事件
	PermissionReplayEvents = "events:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionCreateTask,
		PermissionReadTask,
		PermissionUpdateTask,
		PermissionDeleteTask,
	},
	RoleAdmin: {
		PermissionCreateTask,
		PermissionReadTask,
		PermissionUpdateTask,
		PermissionDeleteTask,
		PermissionReplayEvents,
	},
}

// Checker 根据角色解析器做权限判断
type Checker struct {
	roleOf func(userID int) string
}

// NewChecker 创建 Checker；roleOf 为 nil 时所有用户都是 user 角色
func NewChecker(roleOf func(userID int) string) *Checker {
	if roleOf == nil {
		roleOf = func(int) string { return RoleUser }
	}
	return &Checker{roleOf: roleOf}
}

// Default 所有用户均为 user 角色
var Default = NewChecker(nil)

// HasPermission 检查用户是否有指定权限
func (c *Checker) HasPermission(userID int, permission string) bool {
	if userID <= 0 {
		return false
	}
	return RoleHasPermission(c.roleOf(userID), permission)
}

// RoleHasPermission 检查角色是否有指定权限，未知角色没有任何权限
func RoleHasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(permissions, permission)
}

// CheckPermission 检查用户是否有指定权限（返回错误而不是布尔值，便于处理）
func (c *Checker) CheckPermission(userID int, permission string) error {
	if !c.HasPermission(userID, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Permission: permission,
		}
	}
	return nil
}

// HasPermission 使用默认 Checker
func HasPermission(userID int, permission string) bool {
	return Default.HasPermission(userID, permission)
}

// CheckPermission 使用默认 Checker
func CheckPermission(userID int, permission string) error {
	return Default.CheckPermission(userID, permission)
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
