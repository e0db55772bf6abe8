package model

import "errors"

var (
	ErrEmptyUsername = errors.New("username is required")
	ErrEmptyPassword = errors.New("password is required")
	ErrEmptyTitle    = errors.New("empty title")
)
