// Package resilience wraps outbound effects with retry, error
// classification, and per-key circuit breakers.
package resilience

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/services"
)

// Class buckets an error by its operational cause.
type Class string

// Error classes.
const (
	ClassNetwork    Class = "network"
	ClassServer     Class = "server"
	ClassRateLimit  Class = "rate_limit"
	ClassClient     Class = "client"
	ClassAuth       Class = "auth"
	ClassValidation Class = "validation"
	ClassUnknown    Class = "unknown"
)

var retryableMessage = regexp.MustCompile(`PassKey expired|Rate limit|Temporary failure`)

// connTokens are the connection-level failure markers treated as
// transient regardless of the wrapping error type.
var connTokens = []string{"ECONNRESET", "ETIMEDOUT", "ENOTFOUND", "ECONNREFUSED",
	"connection reset", "connection refused", "no such host", "i/o timeout"}

// Classify is a pure function of the error shape.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var authErr *bsa.AuthError
	if errors.As(err, &authErr) {
		return ClassAuth
	}

	var netErr *bsa.NetworkError
	if errors.As(err, &netErr) {
		switch {
		case netErr.Code == 429:
			return ClassRateLimit
		case netErr.Code >= 500:
			return ClassServer
		case netErr.Code == 408 || netErr.Code == 0:
			return ClassNetwork
		default:
			return ClassClient
		}
	}

	if services.IsValidationError(err) {
		return ClassValidation
	}

	var extErr *bsa.ExternalError
	if errors.As(err, &extErr) {
		return ClassClient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	msg := err.Error()
	for _, tok := range connTokens {
		if strings.Contains(msg, tok) {
			return ClassNetwork
		}
	}
	if strings.Contains(msg, "Rate limit") {
		return ClassRateLimit
	}

	return ClassUnknown
}

// Retryable reports whether the error is worth retrying: connection-level
// failures, HTTP 408/429/5xx, or a transient message marker.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr *bsa.NetworkError
	if errors.As(err, &netErr) {
		if netErr.Code == 408 || netErr.Code == 429 || netErr.Code >= 500 || netErr.Code == 0 {
			return true
		}
		return false
	}

	msg := err.Error()
	for _, tok := range connTokens {
		if strings.Contains(msg, tok) {
			return true
		}
	}
	return retryableMessage.MatchString(msg)
}
