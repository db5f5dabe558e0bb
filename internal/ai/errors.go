package ai

import "errors"

var (
	ErrUnavailable = errors.New("ai provider not configured")
	ErrUnsupported = errors.New("operation not supported by this provider")
	ErrEmptyResult = errors.New("empty ai response")
)
