package model

import "errors"

var (
	ErrModelNotFound      = errors.New("model not found")
	ErrVersionNotFound    = errors.New("model version not found")
	ErrTextureSetNotFound = errors.New("texture set not found")
)
