package service

import (
	"context"

	"github.com/pds-match-service/internal/domain"
)

// Score bands. A matched record's registry score is classified against these fixed thresholds.
const (
	MatchThreshold          = 0.95
	PotentialMatchThreshold = 0.85
)

// SearchFunc executes a single query variant against the registry.
type SearchFunc func(ctx context.Context, variant domain.QueryVariant) (domain.RegistrySearchResult, error)

// ClassifyScore maps a registry score onto a match status.
func ClassifyScore(score float64) domain.MatchStatus {
	switch {
	case score >= MatchThreshold:
		return domain.StatusMatch
	case score >= PotentialMatchThreshold:
		return domain.StatusPotentialMatch
	default:
		return domain.StatusLowConfidenceMatch
	}
}

// Classify folds an ordered sequence of search results into a decision. The first Matched,
// MultiMatched or Error result is definitive; Unmatched results are skipped.
func Classify(results []domain.RegistrySearchResult) domain.MatchDecision {
	for i, result := range results {
		if decision, done := decide(i, result); done {
			return decision
		}
	}
	return noMatch(len(results) - 1)
}

// Decide executes variants one at a time and stops at the first definitive outcome, so no
// registry call is made for variants after it. Cancellation is observed between attempts.
func Decide(ctx context.Context, variants []domain.QueryVariant, execute SearchFunc) (domain.MatchDecision, *domain.RegistrySearchResult) {
	for i, variant := range variants {
		if err := ctx.Err(); err != nil {
			return errorDecision(i, err.Error()), nil
		}

		result, err := execute(ctx, variant)
		if err != nil {
			return errorDecision(i, err.Error()), nil
		}

		if decision, done := decide(i, result); done {
			return decision, &result
		}
	}
	return noMatch(len(variants) - 1), nil
}

func decide(index int, result domain.RegistrySearchResult) (domain.MatchDecision, bool) {
	switch result.Outcome {
	case domain.OutcomeMatched:
		score := result.Score
		return domain.MatchDecision{
			Status:       ClassifyScore(score),
			Identifier:   result.RecordID,
			Score:        &score,
			VariantIndex: index,
			ProcessStage: domain.StageSearch,
		}, true
	case domain.OutcomeMultiMatched:
		return domain.MatchDecision{
			Status:       domain.StatusManyMatch,
			VariantIndex: index,
			ProcessStage: domain.StageSearch,
		}, true
	case domain.OutcomeError:
		return errorDecision(index, result.Message), true
	default:
		return domain.MatchDecision{}, false
	}
}

func errorDecision(index int, message string) domain.MatchDecision {
	return domain.MatchDecision{
		Status:       domain.StatusError,
		VariantIndex: index,
		ProcessStage: domain.StageSearch,
		Message:      message,
	}
}

func noMatch(lastIndex int) domain.MatchDecision {
	return domain.MatchDecision{
		Status:       domain.StatusNoMatch,
		VariantIndex: lastIndex,
		ProcessStage: domain.StageSearch,
	}
}
