package middleware

const (
	RequestIDKey = "request_id"
	UserIDKey    = "user_id"
	RoleKey      = "role"
)
