package auth

import "errors"

var (
	ErrInvalidInitData      = errors.New("invalid telegram init data")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	ErrUserNotFound         = errors.New("user not found")
	ErrRefreshTokenRequired = errors.New("refresh token is required")
	ErrUserBanned           = errors.New("user is banned")
)
