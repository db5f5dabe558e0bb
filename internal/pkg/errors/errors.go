package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrInternal = errors.New("internal")

	// ErrExtraction marks a structured-extraction pass that yielded
	// nothing usable. It is recovered locally by the multimodal
	// fallback and must not escape the extractor.
	ErrExtraction = errors.New("extraction failed")
	// ErrFallbackExtraction is fatal for the document: there is no
	// further degradation path after the multimodal pass.
	ErrFallbackExtraction = errors.New("fallback extraction failed")
	ErrEmbedding          = errors.New("embedding failed")
	ErrIndexUnavailable   = errors.New("vector index unavailable")
	ErrGeneration         = errors.New("answer generation failed")
	ErrTimeout            = errors.New("external service timeout")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
