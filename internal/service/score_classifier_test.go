package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pds-match-service/internal/domain"
)

func TestClassifyScore(t *testing.T) {
	tests := []struct {
		score    float64
		expected domain.MatchStatus
	}{
		{1.0, domain.StatusMatch},
		{0.99, domain.StatusMatch},
		{0.95, domain.StatusMatch},
		{0.9499, domain.StatusPotentialMatch},
		{0.94, domain.StatusPotentialMatch},
		{0.85, domain.StatusPotentialMatch},
		{0.8499, domain.StatusLowConfidenceMatch},
		{0.1, domain.StatusLowConfidenceMatch},
		{0, domain.StatusLowConfidenceMatch},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyScore(tt.score), "score %v", tt.score)
	}
}

func TestClassify(t *testing.T) {
	t.Run("Empty_Results", func(t *testing.T) {
		decision := Classify(nil)
		assert.Equal(t, domain.StatusNoMatch, decision.Status)
		assert.Equal(t, -1, decision.VariantIndex)
	})

	t.Run("Unmatched_Then_Matched", func(t *testing.T) {
		decision := Classify([]domain.RegistrySearchResult{
			domain.Unmatched(),
			domain.Matched("9000000009", 0.97),
			domain.MultiMatched(),
		})
		assert.Equal(t, domain.StatusMatch, decision.Status)
		assert.Equal(t, "9000000009", decision.Identifier)
		assert.Equal(t, 1, decision.VariantIndex)
		require.NotNil(t, decision.Score)
		assert.Equal(t, 0.97, *decision.Score)
	})

	t.Run("MultiMatched_Ends_Loop", func(t *testing.T) {
		decision := Classify([]domain.RegistrySearchResult{
			domain.MultiMatched(),
			domain.Matched("9000000009", 0.99),
		})
		assert.Equal(t, domain.StatusManyMatch, decision.Status)
		assert.Equal(t, 0, decision.VariantIndex)
		assert.Nil(t, decision.Score)
	})

	t.Run("Error_Preserves_Message", func(t *testing.T) {
		decision := Classify([]domain.RegistrySearchResult{
			domain.Unmatched(),
			domain.SearchError("registry timeout"),
		})
		assert.Equal(t, domain.StatusError, decision.Status)
		assert.Equal(t, "registry timeout", decision.Message)
		assert.Equal(t, 1, decision.VariantIndex)
	})

	t.Run("All_Unmatched", func(t *testing.T) {
		decision := Classify([]domain.RegistrySearchResult{domain.Unmatched(), domain.Unmatched()})
		assert.Equal(t, domain.StatusNoMatch, decision.Status)
		assert.Equal(t, 1, decision.VariantIndex)
	})
}

func TestDecide(t *testing.T) {
	variants := []domain.QueryVariant{{Family: "A"}, {Family: "B"}, {Family: "C"}}

	t.Run("Stops_At_First_Definitive_Outcome", func(t *testing.T) {
		calls := 0
		decision, result := Decide(context.Background(), variants, func(ctx context.Context, v domain.QueryVariant) (domain.RegistrySearchResult, error) {
			calls++
			if v.Family == "B" {
				return domain.Matched("9000000017", 0.9), nil
			}
			return domain.Unmatched(), nil
		})

		assert.Equal(t, 2, calls)
		assert.Equal(t, domain.StatusPotentialMatch, decision.Status)
		require.NotNil(t, result)
		assert.Equal(t, "9000000017", result.RecordID)
	})

	t.Run("Execution_Error_Becomes_Error_Decision", func(t *testing.T) {
		calls := 0
		decision, result := Decide(context.Background(), variants, func(ctx context.Context, v domain.QueryVariant) (domain.RegistrySearchResult, error) {
			calls++
			return domain.RegistrySearchResult{}, errors.New("connection refused")
		})

		assert.Equal(t, 1, calls)
		assert.Equal(t, domain.StatusError, decision.Status)
		assert.Equal(t, "connection refused", decision.Message)
		assert.Nil(t, result)
	})

	t.Run("Cancellation_Between_Attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		decision, _ := Decide(ctx, variants, func(ctx context.Context, v domain.QueryVariant) (domain.RegistrySearchResult, error) {
			calls++
			cancel()
			return domain.Unmatched(), nil
		})

		assert.Equal(t, 1, calls)
		assert.Equal(t, domain.StatusError, decision.Status)
		assert.Equal(t, 1, decision.VariantIndex)
		assert.Equal(t, context.Canceled.Error(), decision.Message)
	})
}
