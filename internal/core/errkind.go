package core

import "errors"

// Kind is a stable, comparable error classification attached to pipeline
// errors so callers (and tests) can branch on failure category without
// parsing messages.
type Kind string

const (
	ConfigError        Kind = "config_error"
	IoError            Kind = "io_error"
	ExtractionError    Kind = "extraction_error"
	BackendUnavailable Kind = "backend_unavailable"
	SchemaError        Kind = "schema_error"
	CollisionError     Kind = "collision_error"
	IntegrityError     Kind = "integrity_error"
	SourceChanged      Kind = "source_changed"
)

// KindError wraps an error with a stable Kind. errors.Is matches against
// another *KindError with the same Kind, so callers can write
// errors.Is(err, &KindError{Kind: core.IoError}).
type KindError struct {
	Kind Kind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() error { return e.Err }

func (e *KindError) Is(target error) bool {
	var k *KindError
	if errors.As(target, &k) {
		return k.Kind == e.Kind
	}
	return false
}

// Wrap attaches kind to err. Returns nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, if any was attached via Wrap.
func KindOf(err error) (Kind, bool) {
	var k *KindError
	if errors.As(err, &k) {
		return k.Kind, true
	}
	return "", false
}
