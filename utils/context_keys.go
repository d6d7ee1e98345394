package utils

// Gin context keys shared between middlewares, controllers and views.
const (
	CtxUserID    = "user_id"
	CtxUsername  = "username"
	CtxUser      = "current_user"
	CtxCSRFToken = "csrf_token"
	CtxToken     = "session_token"
)
