package user

import "errors"

var (
	ErrNotFound           = errors.New("user: not found")
	ErrUsernameTaken      = errors.New("user: username already taken")
	ErrInvalidCredentials = errors.New("user: invalid credentials")
	ErrInvalidInput       = errors.New("user: invalid input")
)
