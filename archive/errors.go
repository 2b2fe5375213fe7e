package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"syscall"

	"github.com/aws/smithy-go"
)

// Sentinel errors for storage failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrPermissionDenied indicates a permission/access failure (EACCES, 403).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the target path/resource does not exist (ENOENT, 404).
	ErrNotFound = errors.New("not found")

	// ErrDiskFull indicates storage is out of space (ENOSPC).
	ErrDiskFull = errors.New("no space left on device")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrAuth indicates authentication failure (no credentials, expired token).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates authorization failure (valid creds but no permission).
	ErrAccessDenied = errors.New("access denied")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")

	// ErrStorage is the kind of any failure not classified above.
	ErrStorage = errors.New("storage error")
)

// StorageError wraps an underlying error with storage classification.
// It preserves the original error in the chain for inspection via errors.As.
type StorageError struct {
	// Kind is the sentinel error for classification (e.g., ErrPermissionDenied).
	Kind error
	// Op is the operation that failed ("write", "read", "init").
	Op string
	// Path is the dataset or snapshot involved, if any.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive: %s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("archive: %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewStorageError creates a classified storage error.
func NewStorageError(kind error, op, path string, err error) *StorageError {
	return &StorageError{Kind: kind, Op: op, Path: path, Err: err}
}

// WrapWriteError classifies and wraps a write error. Returns nil for nil.
func WrapWriteError(err error, path string) error {
	return wrap(err, "write", path)
}

// WrapReadError classifies and wraps a read error. Returns nil for nil.
func WrapReadError(err error, path string) error {
	return wrap(err, "read", path)
}

// WrapInitError classifies and wraps a client initialization error.
// Returns nil for nil.
func WrapInitError(err error, dataset string) error {
	return wrap(err, "init", dataset)
}

func wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return NewStorageError(classifyError(err), op, path, err)
}

// apiCodes maps S3 API error codes to kinds.
var apiCodes = map[string]error{
	"AccessDenied":          ErrAccessDenied,
	"AllAccessDisabled":     ErrAccessDenied,
	"NoSuchBucket":          ErrNotFound,
	"NoSuchKey":             ErrNotFound,
	"NotFound":              ErrNotFound,
	"SlowDown":              ErrThrottled,
	"Throttling":            ErrThrottled,
	"RequestTimeout":        ErrTimeout,
	"InvalidAccessKeyId":    ErrAuth,
	"SignatureDoesNotMatch": ErrAuth,
	"ExpiredToken":          ErrAuth,
}

// messageRules classify errors that carry no usable type, checked in order.
var messageRules = []struct {
	kind     error
	patterns []string
}{
	{ErrAccessDenied, []string{"AccessDenied", "Forbidden", "403"}},
	{ErrPermissionDenied, []string{"permission denied", "EACCES", "access denied"}},
	{ErrNotFound, []string{"no such file", "does not exist", "not found", "ENOENT", "404", "NoSuchKey"}},
	{ErrDiskFull, []string{"no space left", "disk full", "ENOSPC", "quota exceeded"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"SlowDown", "rate exceeded", "throttl", "429", "TooManyRequests"}},
	{ErrAuth, []string{"NoCredentialProviders", "credentials", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "ExpiredToken", "401", "Unauthorized"}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable", "DNS", "dial tcp"}},
}

// classifyError maps err to a sentinel: typed errors first, then S3 API
// codes, then message patterns.
func classifyError(err error) error {
	var timeoutErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &timeoutErr) && timeoutErr.Timeout():
		return ErrTimeout
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, syscall.ENOSPC):
		return ErrDiskFull
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrNetwork
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := apiCodes[apiErr.ErrorCode()]; ok {
			return kind
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, p := range rule.patterns {
			if strings.Contains(msg, strings.ToLower(p)) {
				return rule.kind
			}
		}
	}
	return ErrStorage
}
