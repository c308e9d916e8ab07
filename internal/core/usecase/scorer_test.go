package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

func newTestScorer(r *retrieverFake) *WeightedScorer {
	return NewWeightedScorer(r, domain.DefaultRetrievalPolicy(), domain.DefaultAnswerLimits())
}

func TestScoreEmptyPrimarySkipsContextQuery(t *testing.T) {
	r := &retrieverFake{}
	res := newTestScorer(r).Score(context.Background(), "What is asthma?", []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
	})

	assert.False(t, res.HasContext)
	assert.Empty(t, res.Context)
	assert.Equal(t, 0.0, res.BlendedScore)
	assert.Empty(t, res.Sources)
	assert.Equal(t, domain.RetrievalNoResults, res.Outcome)
	assert.Equal(t, 1, r.calls())
}

func TestScorePrimaryFailureMeansNoContext(t *testing.T) {
	r := &retrieverFake{errs: []error{errors.New("qdrant down")}}
	res := newTestScorer(r).Score(context.Background(), "What is asthma?", nil)

	assert.False(t, res.HasContext)
	assert.Equal(t, domain.RetrievalError, res.Outcome)
	assert.Equal(t, 1, r.calls())
}

func TestScoreBlendsPrimaryAndContextScores(t *testing.T) {
	r := &retrieverFake{results: [][]domain.Passage{
		{{Text: "Asthma causes wheezing.", Score: 0.5, Source: "https://www.nhs.uk/conditions/asthma/"}},
		{{Text: "unrelated", Score: 0.2, Source: "https://www.nhs.uk/conditions/cough/"}},
	}}
	turns := []domain.Turn{
		{Role: domain.RoleUser, Content: "My son keeps coughing at night."},
		{Role: domain.RoleAssistant, Content: "Night-time coughing has several causes."},
	}

	res := newTestScorer(r).Score(context.Background(), "Could it be asthma?", turns)

	assert.InDelta(t, 0.44, res.BlendedScore, 1e-9)
	require.True(t, res.HasContext)
	assert.Equal(t, "Asthma causes wheezing.", res.Context)
	assert.Equal(t, []string{"https://www.nhs.uk/conditions/asthma/"}, res.Sources)
	assert.Equal(t, domain.RetrievalAccepted, res.Outcome)
	require.Equal(t, 2, r.calls())
	assert.Equal(t, "Could it be asthma?", r.queries[0])
	assert.Contains(t, r.queries[1], "coughing at night")
	assert.Contains(t, r.queries[1], "Could it be asthma?")
}

func TestScoreBlendedQueryUsesAtMostTwoTurns(t *testing.T) {
	r := &retrieverFake{results: [][]domain.Passage{
		{{Text: "t", Score: 0.9, Source: "https://www.nhs.uk/a"}},
		{{Text: "t", Score: 0.9, Source: "https://www.nhs.uk/a"}},
	}}
	turns := []domain.Turn{
		{Role: domain.RoleUser, Content: "oldest"},
		{Role: domain.RoleAssistant, Content: "middle"},
		{Role: domain.RoleUser, Content: "newest"},
	}

	newTestScorer(r).Score(context.Background(), "question", turns)

	require.Equal(t, 2, r.calls())
	assert.Equal(t, "middle newest question", r.queries[1])
}

func TestScoreSecondaryFailureIsSwallowed(t *testing.T) {
	r := &retrieverFake{
		results: [][]domain.Passage{{{Text: "Diabetes info", Score: 0.62, Source: "https://www.nhs.uk/conditions/diabetes/"}}},
		errs:    []error{nil, errors.New("timeout")},
	}

	res := newTestScorer(r).Score(context.Background(), "and the treatment?", []domain.Turn{{Role: domain.RoleUser, Content: "diabetes"}})

	assert.InDelta(t, 0.496, res.BlendedScore, 1e-9)
	assert.True(t, res.HasContext)
}

func TestScoreOffDomainReturnsUnfilteredSources(t *testing.T) {
	r := &retrieverFake{results: [][]domain.Passage{{
		{Text: "a", Score: 0.95, Source: "https://example.com/a"},
		{Text: "b", Score: 0.90, Source: "https://example.com/b"},
		{Text: "c", Score: 0.85, Source: "https://notnhs.uk.example.com/c"},
	}}}

	res := newTestScorer(r).Score(context.Background(), "What is a migraine?", nil)

	assert.False(t, res.HasContext)
	assert.Equal(t, 0.0, res.BlendedScore)
	assert.Equal(t, domain.RetrievalOffDomain, res.Outcome)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b", "https://notnhs.uk.example.com/c"}, res.Sources)
}

func TestScoreBelowThresholdKeepsScoreAndSources(t *testing.T) {
	r := &retrieverFake{results: [][]domain.Passage{{
		{Text: "weak", Score: 0.25, Source: "https://www.cancerresearchuk.org/about-cancer"},
	}}}

	res := newTestScorer(r).Score(context.Background(), "What is a mole?", nil)

	assert.False(t, res.HasContext)
	assert.InDelta(t, 0.2, res.BlendedScore, 1e-9)
	assert.Equal(t, []string{"https://www.cancerresearchuk.org/about-cancer"}, res.Sources)
	assert.Equal(t, domain.RetrievalLowConfidence, res.Outcome)
}

func TestScoreIncludesPassagesAboveLooserBar(t *testing.T) {
	r := &retrieverFake{results: [][]domain.Passage{{
		{Text: "first", Score: 0.9, Source: "https://www.nhs.uk/a"},
		{Text: "second", Score: 0.25, Source: "https://www.nhs.uk/b"},
		{Text: "third", Score: 0.23, Source: "https://www.nhs.uk/c"},
	}}}

	res := newTestScorer(r).Score(context.Background(), "q", nil)

	require.True(t, res.HasContext)
	assert.Equal(t, "first\n\nsecond", res.Context)
	assert.Len(t, res.Sources, 3)
}

func TestScoreCustomWeights(t *testing.T) {
	policy := domain.DefaultRetrievalPolicy()
	policy.PrimaryWeight = 0.5
	policy.ContextWeight = 0.5
	r := &retrieverFake{results: [][]domain.Passage{
		{{Text: "x", Score: 0.4, Source: "nhs.uk/x"}},
		{{Text: "y", Score: 0.2, Source: "nhs.uk/y"}},
	}}
	scorer := NewWeightedScorer(r, policy, domain.DefaultAnswerLimits())

	res := scorer.Score(context.Background(), "q", []domain.Turn{{Role: domain.RoleUser, Content: "prev"}})

	assert.InDelta(t, 0.3, res.BlendedScore, 1e-9)
	assert.True(t, res.HasContext)
}

func TestMatchApprovedDomain(t *testing.T) {
	approved := domain.DefaultRetrievalPolicy().ApprovedDomains
	cases := map[string]bool{
		"https://www.nhs.uk/conditions/diabetes/": true,
		"http://nhs.uk":                           true,
		"www.cancerresearchuk.org/about-cancer":   true,
		"https://NHS.UK/x":                        true,
		"https://example.com/nhs.uk":              false,
		"https://fakenhs.uk/":                     false,
		"":                                        false,
	}
	for source, want := range cases {
		_, got := matchApprovedDomain(source, approved)
		assert.Equal(t, want, got, source)
	}
}
