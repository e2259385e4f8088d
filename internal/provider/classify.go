package provider

import (
	stdErrors "errors"
	"net"
	"os"
	"strings"

	"github.com/starfall-ai/starfall-backend/pkg/errors"
)

// transientStatuses are upstream HTTP statuses worth another attempt.
var transientStatuses = map[int]bool{
	408: true,
	409: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// transientPhrases match upstream error text that signals a passing
// condition even when the status code does not.
var transientPhrases = []string{
	"overload",
	"rate limit",
	"temporarily unavailable",
	"try again",
	"connection reset",
	"connection refused",
	"no such host",
	"gateway timeout",
	"timed out",
	"timeout",
}

// classifyUpstream maps an upstream failure to the error taxonomy.
// Transient statuses and transient phrasing yield a retryable error;
// everything else is terminal.
func classifyUpstream(status int, message string) *errors.Error {
	if transientStatuses[status] || matchesTransientPhrase(message) {
		return errors.New(errors.CodeUpstreamTransient, message)
	}
	return errors.New(errors.CodeUpstreamTerminal, message)
}

func matchesTransientPhrase(message string) bool {
	lowered := strings.ToLower(message)
	for _, phrase := range transientPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// Retryable is the single retry decision point for submission failures.
// Timeouts and circuit rejections are retryable; validation and
// terminal upstream rejections are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	if typed := errors.As(err); typed != nil {
		switch typed.Code() {
		case errors.CodeUpstreamTransient, errors.CodeCircuitOpen:
			return true
		case errors.CodeUpstreamTerminal, errors.CodeValidation, errors.CodeInsufficientBalance:
			return false
		}
	}

	if stdErrors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return matchesTransientPhrase(err.Error())
}
