package auth

import "errors"

var (
	InvalidCredentialsErr = errors.New("invalid email or password")
	TokenNotFoundErr      = errors.New("refresh token not found")
	TokenExpiredErr       = errors.New("refresh token expired")
	TokenReplayedErr      = errors.New("refresh token replayed")
	UserNotFoundErr       = errors.New("user not found")
	UserExistsErr         = errors.New("user already exists")
)
