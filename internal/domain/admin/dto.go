package admin

// BanUserRequest for PATCH /admin/users/{id}/ban
type BanUserRequest struct {
	IsBanned bool   `json:"is_banned"`
	Reason   string `json:"reason" validate:"max=500"`
}

// SetRoleRequest for PATCH /admin/users/{id}/role
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=player admin"`
}
