package service

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotFound           = errors.New("not found")
	ErrNotContact         = errors.New("recipient is not in your contacts")
	ErrSelfContact        = errors.New("cannot add yourself as a contact")
	ErrContactExists      = errors.New("contact relationship already exists")
	ErrCodeNotFound       = errors.New("contact code not found")
	ErrPowFailed          = errors.New("invalid proof of work")
	ErrConflict           = errors.New("already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
