package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPhotoNotFound = errors.New("photo not found")
	ErrUnauthorized  = errors.New("invalid credentials")

	ErrDecode   = errors.New("image decode failed")
	ErrMetadata = errors.New("image metadata rewrite failed")
	ErrEncode   = errors.New("image encode failed")

	ErrBlobNotFound  = errors.New("blob not found")
	ErrBlobAuth      = errors.New("blob store rejected credentials")
	ErrBlobTransient = errors.New("blob store unavailable")
)

// NormalizationError wraps a failure of the image pipeline for one file.
// Kind is one of ErrDecode, ErrMetadata or ErrEncode.
type NormalizationError struct {
	Filename string
	Kind     error
	Err      error
}

func (e *NormalizationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Filename, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Filename, e.Kind, e.Err)
}

func (e *NormalizationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewNormalizationError(filename string, kind, err error) *NormalizationError {
	return &NormalizationError{Filename: filename, Kind: kind, Err: err}
}

// BlobError is returned by every blob store backend. Kind is one of
// ErrBlobNotFound, ErrBlobAuth or ErrBlobTransient.
type BlobError struct {
	Key  string
	Kind error
	Err  error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("blob %s: %v: %v", e.Key, e.Kind, e.Err)
}

func (e *BlobError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// UploadStage names the step of an upload that failed.
type UploadStage string

const (
	StageNormalize UploadStage = "normalize"
	StageStore     UploadStage = "store"
	StageRecord    UploadStage = "record"
)

type UploadError struct {
	Filename string
	Stage    UploadStage
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed at %s: %v", e.Filename, e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// PublicMessage returns the text that can be shown to a client.
// It never includes object keys, DSNs or credentials.
func (e *UploadError) PublicMessage() string {
	switch e.Stage {
	case StageNormalize:
		return "failed to process image"
	case StageStore:
		return "failed to store image"
	case StageRecord:
		return "failed to save photo"
	default:
		return "internal server error"
	}
}
