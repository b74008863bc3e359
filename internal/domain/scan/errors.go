package scan

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError describes one invalid configuration field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for a malformed scan configuration, before
// any network call is made.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid scan configuration: " + strings.Join(parts, "; ")
}

// NotFoundError signals an unknown preset or an unresolvable asset.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// PermissionError signals an attempt to mutate or delete something the
// caller does not control, such as a system preset.
type PermissionError struct {
	Action   string
	Resource string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: cannot %s %s", e.Action, e.Resource)
}

// UpstreamError wraps a failure from an external data source. Retryable
// tells the calling layer whether the operation is worth repeating.
type UpstreamError struct {
	Source    string
	Err       error
	Retryable bool
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a configuration validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPermission reports whether err is a permission failure.
func IsPermission(err error) bool {
	var p *PermissionError
	return errors.As(err, &p)
}

// IsUpstream reports whether err originated from an external data source.
func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}
