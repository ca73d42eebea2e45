package external

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pds-match-service/internal/domain"
)

// ResilientRegistryClient wraps a registry client with a circuit breaker. Not-found and
// superseded answers from Fetch are outcomes, so they never count as failures.
type ResilientRegistryClient struct {
	client  domain.RegistryClient
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientRegistryClient creates a new resilient registry client
func NewResilientRegistryClient(client domain.RegistryClient, config domain.CircuitBreakerConfig, logger *logrus.Logger) *ResilientRegistryClient {
	if config.MaxRequests == 0 {
		config.MaxRequests = 5
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MinRequests == 0 {
		config.MinRequests = 3
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Registry",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientRegistryClient{
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

// Search executes a query variant through the circuit breaker.
func (r *ResilientRegistryClient) Search(ctx context.Context, variant domain.QueryVariant) (domain.RegistrySearchResult, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Search(ctx, variant)
	})
	if err != nil {
		return domain.RegistrySearchResult{}, breakerError("search", err)
	}
	return result.(domain.RegistrySearchResult), nil
}

// Fetch retrieves a record through the circuit breaker.
func (r *ResilientRegistryClient) Fetch(ctx context.Context, identifier string) (*domain.PatientRecord, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Fetch(ctx, identifier)
	})
	if err != nil {
		return nil, breakerError("fetch", err)
	}
	return result.(*domain.PatientRecord), nil
}

// State returns the current breaker state.
func (r *ResilientRegistryClient) State() gobreaker.State {
	return r.breaker.State()
}

// Health fails while the breaker is open, since every registry call would be rejected.
func (r *ResilientRegistryClient) Health(ctx context.Context) error {
	if r.breaker.State() == gobreaker.StateOpen {
		return domain.ErrCircuitOpen
	}
	return nil
}

func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, domain.ErrRecordNotFound) || errors.Is(err, context.Canceled) {
		return true
	}
	var superseded *domain.SupersededError
	return errors.As(err, &superseded)
}

func breakerError(operation string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.RegistryError{
			Operation:  operation,
			Message:    "registry unavailable (circuit breaker open)",
			Retryable:  true,
			Underlying: domain.ErrCircuitOpen,
		}
	}
	return err
}
