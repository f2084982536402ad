package domain

const (
	PermUsersManage      = "admin.users.manage"
	PermConfigEdit       = "admin.config.edit"
	PermCameraView       = "camera.view"
	PermLockOperate      = "lock.operate"
	PermServiceCall      = "service.call"
	PermCredentialManage = "credential.manage"
)

// BuiltinPermissions is the seed set installed by the initial migration.
var BuiltinPermissions = []string{
	PermUsersManage,
	PermConfigEdit,
	PermCameraView,
	PermLockOperate,
	PermServiceCall,
	PermCredentialManage,
}
