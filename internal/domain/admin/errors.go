package admin

import "errors"

var (
	ErrCannotManageSelf = errors.New("cannot change your own account")
)
