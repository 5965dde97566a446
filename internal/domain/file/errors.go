package file

import "errors"

var (
	ErrFileNotFound       = errors.New("file not found")
	ErrEmptyFile          = errors.New("file is empty")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrHashComputation    = errors.New("failed to compute content fingerprint")
	ErrStorageUnavailable = errors.New("file storage is unavailable")
)
