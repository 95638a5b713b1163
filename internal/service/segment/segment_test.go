package segment

import (
	"context"
	"errors"
	"testing"

	"github.com/newsly/newsly/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource []domain.Subscriber

func (s sliceSource) FindSubscribers(_ context.Context, q Query) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for i := range s {
		if q.Matches(&s[i]) {
			out = append(out, s[i])
		}
	}
	return out, nil
}

type failingSource struct{}

func (failingSource) FindSubscribers(context.Context, Query) ([]domain.Subscriber, error) {
	return nil, errors.New("db down")
}

func ids(subs []domain.Subscriber) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.ID)
	}
	return out
}

var population = sliceSource{
	{ID: "free", Tier: domain.TierFree, DailyDigest: true, Topics: []domain.Topic{domain.TopicCrypto}},
	{ID: "pro", Tier: domain.TierPro, DailyDigest: true, Topics: []domain.Topic{domain.TopicCrypto, domain.TopicAITools}},
	{ID: "premium", Tier: domain.TierPremium, DailyDigest: true, Topics: []domain.Topic{domain.TopicAITools}},
	{ID: "no-digest", Tier: domain.TierPremium, DailyDigest: false, Topics: []domain.Topic{domain.TopicCrypto}},
	{ID: "gone", Tier: domain.TierPremium, DailyDigest: true, Unsubscribed: true, Topics: []domain.Topic{domain.TopicCrypto}},
}

func TestEligibleTierInclusion(t *testing.T) {
	sel := NewSelector(population)
	ctx := context.Background()

	free, err := sel.Eligible(ctx, domain.TopicCrypto, domain.TierFree)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"free", "pro"}, ids(free))

	pro, err := sel.Eligible(ctx, domain.TopicCrypto, domain.TierPro)
	require.NoError(t, err)
	assert.Equal(t, []string{"pro"}, ids(pro))

	premium, err := sel.Eligible(ctx, domain.TopicCrypto, domain.TierPremium)
	require.NoError(t, err)
	assert.Empty(t, premium)
}

func TestEligibleRejectsUnknownValues(t *testing.T) {
	sel := NewSelector(population)
	_, err := sel.Eligible(context.Background(), domain.Topic("gardening"), domain.TierFree)
	assert.ErrorIs(t, err, ErrInvalidSegment)

	_, err = sel.Eligible(context.Background(), domain.TopicCrypto, domain.Tier("GOLD"))
	assert.ErrorIs(t, err, ErrInvalidSegment)
}

func TestEligibleSourceError(t *testing.T) {
	_, err := NewSelector(failingSource{}).Eligible(context.Background(), domain.TopicCrypto, domain.TierFree)
	assert.Error(t, err)
}

func TestTargeted(t *testing.T) {
	sel := NewSelector(population)
	ctx := context.Background()

	byID, targeted, err := sel.Targeted(ctx, Target{SubscriberIDs: []string{"premium", "gone"}, Topics: []domain.Topic{domain.TopicCrypto}})
	require.NoError(t, err)
	assert.True(t, targeted)
	assert.Equal(t, []string{"premium"}, ids(byID))

	byTopic, targeted, err := sel.Targeted(ctx, Target{Topics: []domain.Topic{domain.TopicAITools}})
	require.NoError(t, err)
	assert.True(t, targeted)
	assert.ElementsMatch(t, []string{"pro", "premium"}, ids(byTopic))

	everyone, targeted, err := sel.Targeted(ctx, Target{})
	require.NoError(t, err)
	assert.False(t, targeted)
	// Admin sends ignore the digest flag but never reach unsubscribed rows.
	assert.ElementsMatch(t, []string{"free", "pro", "premium", "no-digest"}, ids(everyone))
}
