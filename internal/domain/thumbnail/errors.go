package thumbnail

import "errors"

var (
	ErrJobNotFound       = errors.New("thumbnail job not found")
	ErrJobNotProcessing  = errors.New("thumbnail job is not in processing state")
	ErrThumbnailNotFound = errors.New("thumbnail not found")
	ErrRenderFailed      = errors.New("rendering failed")
)
