package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/resilience"
)

// StatusError is a non-2xx reply from the model server.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("ollama %s: status %d: %s", e.Operation, e.StatusCode, body)
}

// modelMissing matches the 404 Ollama returns for a model that was never pulled.
func (e *StatusError) modelMissing() bool {
	return e.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(e.Body), "not found")
}

// contextOverflow matches 400 replies for prompts or budgets the model cannot fit.
func (e *StatusError) contextOverflow() bool {
	if e.StatusCode != http.StatusBadRequest {
		return false
	}
	body := strings.ToLower(e.Body)
	for _, marker := range []string{"context length", "num_ctx", "num_predict", "too long", "exceeds"} {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func classifyError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.modelMissing():
			// Persistent until someone pulls the model; let the breaker open.
			return resilience.ErrorClassification{RecordFailure: true}
		case retryableStatus(statusErr.StatusCode):
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// toDomainError maps a failed call onto the domain error kinds.
func toDomainError(operation, model string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{domain.ErrTemporary, domain.ErrUnavailable, domain.ErrInvalidInput} {
		if domain.IsKind(err, kind) {
			return err
		}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.modelMissing():
			return domain.WrapError(domain.ErrUnavailable, operation,
				fmt.Errorf("model %q is not pulled on the ollama server: %w", model, err))
		case statusErr.contextOverflow():
			return domain.WrapError(domain.ErrInvalidInput, operation,
				fmt.Errorf("request does not fit model %q context: %w", model, err))
		}
	}
	if classifyError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// hasModel accepts an exact tag or the implicit ":latest" tag.
func hasModel(names []string, model string) bool {
	want := strings.TrimSpace(model)
	if want == "" {
		return true
	}
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, name := range names {
		got := name
		if !strings.Contains(got, ":") {
			got += ":latest"
		}
		if got == want {
			return true
		}
	}
	return false
}
