// Package apperrors holds the error taxonomy shared by the task and the
// adapter layer.
//
// Configuration, network and upstream errors propagate to the task driver,
// which turns them into a single notification. Parse errors are recovered
// where they happen and only show up as the cause of a network error when
// an upstream body cannot be decoded.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken = errors.New("weather token not configured")
	ErrNoLocation   = errors.New("location not available")
)

// ConfigurationError reports a missing or invalid setting. It is fatal to
// the run and never retried.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Setting == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NetworkError wraps a transport failure or a timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError carries the error text of an API that answered with a
// failure status.
type UpstreamError struct {
	Service string
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Service == "" {
		return "upstream error: " + e.Message
	}
	return e.Service + " error: " + e.Message
}

// ParseError reports malformed JSON.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Source, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

func Configuration(setting string, err error) error {
	return &ConfigurationError{Setting: setting, Err: err}
}

func Network(op string, err error) error {
	if err == nil {
		return nil
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return err
	}
	return &NetworkError{Op: op, Err: err}
}

func Upstream(service, msg string) error {
	return &UpstreamError{Service: service, Message: msg}
}

func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

func IsNetwork(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

// AsUpstream returns the upstream error in err's chain, if any.
func AsUpstream(err error) (*UpstreamError, bool) {
	var e *UpstreamError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsParse(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}
