package transport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient failure")
	ErrRejected      = errors.New("request rejected")
	ErrProtocol      = errors.New("protocol error")
)

// Wrap builds an error message that includes the environment and operation
// while tagging it with marker for retry classification. marker should be one
// of the exported sentinels above.
func Wrap(marker error, environment, operation, message string, err error) error {
	detail := buildDetail(environment, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

func buildDetail(environment, operation, message string) string {
	parts := make([]string, 0, 3)
	if environment = strings.TrimSpace(environment); environment != "" {
		parts = append(parts, environment)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "transport failure"
	}
	return strings.Join(parts, ": ")
}
