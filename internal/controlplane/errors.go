package controlplane

import "errors"

var (
	ErrUnauthorized = errors.New("controlplane: caller not authorized")
	ErrInvalidFAM   = errors.New("controlplane: invalid file access manifest")
)
