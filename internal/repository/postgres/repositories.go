package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users          *UserRepository
	Roles          *RoleRepository
	Permissions    *PermissionRepository
	APIPermissions *APIPermissionRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(db DB, retry RetryPolicy) *Repositories {
	return &Repositories{
		Users:          NewUserRepository(db, retry),
		Roles:          NewRoleRepository(db, retry),
		Permissions:    NewPermissionRepository(db, retry),
		APIPermissions: NewAPIPermissionRepository(db, retry),
	}
}
