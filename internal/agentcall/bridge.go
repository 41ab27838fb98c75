package agentcall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/bigfan007/ai-workmate/internal/models"
)

// Bridge calls the external chat-completion providers on behalf of an
// agent. Both call paths share one retry loop: transient failures get up
// to 3 retries with fixed waits, everything else aborts immediately.
type Bridge struct {
	Client           *http.Client
	DeepSeekEndpoint string

	// overridable in tests
	waits []time.Duration
}

var defaultWaits = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

func New(deepSeekEndpoint string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Bridge{
		Client:           &http.Client{Timeout: timeout},
		DeepSeekEndpoint: deepSeekEndpoint,
		waits:            defaultWaits,
	}
}

// Reply generates an assistant reply for a user message through the
// agent's configured provider.
func (b *Bridge) Reply(ctx context.Context, agent *models.AIAgent, query string) (string, error) {
	switch agent.IntegrationType {
	case models.IntegrationDeepSeek:
		if agent.DeepSeekAPIKey == "" {
			return "", fmt.Errorf("agent %s has no DeepSeek API key configured, contact an administrator", agent.Name)
		}
		return b.callWithRetry(ctx, "DeepSeek", func(ctx context.Context) (string, error) {
			return b.callDeepSeek(ctx, agent, query)
		})
	case models.IntegrationAPI:
		if agent.APIEndpoint == "" || agent.APIKey == "" {
			return "", fmt.Errorf("agent %s has an incomplete API configuration, contact an administrator", agent.Name)
		}
		return b.callWithRetry(ctx, "Dify", func(ctx context.Context) (string, error) {
			return b.callDify(ctx, agent, query)
		})
	default:
		return "", fmt.Errorf("agent %s does not support direct chat", agent.Name)
	}
}

// callWithRetry runs fn up to len(waits)+1 times, sleeping the fixed wait
// between attempts. Only transient failures are retried.
func (b *Bridge) callWithRetry(ctx context.Context, provider string, fn func(context.Context) (string, error)) (string, error) {
	waits := b.waits
	if waits == nil {
		waits = defaultWaits
	}

	var lastErr error
	attempts := len(waits) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		answer, err := fn(ctx)
		if err == nil {
			return answer, nil
		}
		lastErr = err

		c := classify(err)
		slog.Warn("provider call failed",
			"provider", provider,
			"attempt", attempt+1,
			"of", attempts,
			"kind", c.kind,
			"retryable", c.retryable,
			"error", err,
		)

		if !c.retryable || attempt == attempts-1 {
			break
		}

		select {
		case <-time.After(waits[attempt]):
		case <-ctx.Done():
			return "", fmt.Errorf("%s API call failed: %s", provider, describe(provider, lastErr))
		}
	}

	return "", fmt.Errorf("%s API call failed: %s", provider, describe(provider, lastErr))
}

type failure struct {
	kind      string
	retryable bool
}

// statusError carries a non-2xx provider response.
type statusError struct {
	Code   int
	Status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, e.Status)
}

// badResponseError marks a 2xx response whose body did not have the
// expected shape. Never retried.
type badResponseError struct {
	provider string
}

func (e *badResponseError) Error() string {
	return e.provider + ": malformed response payload"
}

func classify(err error) failure {
	var se *statusError
	if errors.As(err, &se) {
		if se.Code >= 500 {
			return failure{kind: fmt.Sprintf("HTTP %d", se.Code), retryable: true}
		}
		return failure{kind: fmt.Sprintf("HTTP %d", se.Code), retryable: false}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return failure{kind: "connection refused", retryable: false}
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return failure{kind: "connection reset", retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failure{kind: "DNS resolution failed", retryable: true}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return failure{kind: "timeout", retryable: true}
	}

	return failure{kind: "unknown", retryable: false}
}

// describe maps the final error to the human-readable string surfaced to
// the caller.
func describe(provider string, err error) string {
	if err == nil {
		return "unknown error"
	}

	var se *statusError
	if errors.As(err, &se) {
		if provider == "DeepSeek" {
			switch se.Code {
			case http.StatusUnauthorized:
				return "the API key is invalid or expired, check the key configuration"
			case http.StatusTooManyRequests:
				return "too many requests, try again later"
			case http.StatusBadRequest:
				return "the request parameters were rejected, check the agent configuration"
			}
		}
		return fmt.Sprintf("HTTP %d from the upstream server, try again later or contact support", se.Code)
	}

	switch c := classify(err); c.kind {
	case "connection reset":
		return "the network connection was reset and retries did not help, check connectivity and try again later"
	case "timeout":
		return "the upstream server took too long to respond, try again later"
	case "DNS resolution failed":
		return "the upstream server address could not be resolved, check network and DNS settings"
	case "connection refused":
		return "the upstream server refused the connection, it may be temporarily unavailable"
	default:
		return err.Error()
	}
}
