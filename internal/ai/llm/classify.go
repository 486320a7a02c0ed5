package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	httpc "ai-orchestrator/internal/common/http"
)

// IsRetryable reports whether a provider error is transient: HTTP 408, 429 or 5xx,
// a timeout, a reset or refused connection, or a truncated response.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *httpc.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
