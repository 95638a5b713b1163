package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInclusion(t *testing.T) {
	assert.Equal(t, []Tier{TierFree, TierPro, TierPremium}, Inclusion(TierFree))
	assert.Equal(t, []Tier{TierPro, TierPremium}, Inclusion(TierPro))
	assert.Equal(t, []Tier{TierPremium}, Inclusion(TierPremium))
	assert.Empty(t, Inclusion(Tier("GOLD")))
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" pro ")
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)

	_, err = ParseTier("gold")
	assert.Error(t, err)
}

func TestAllowedTopics(t *testing.T) {
	assert.Len(t, AllowedTopics(TierFree), 5)
	assert.Len(t, AllowedTopics(TierPro), 8)
	assert.Len(t, AllowedTopics(TierPremium), 11)

	assert.True(t, TopicAITools.AllowedFor(TierFree))
	assert.False(t, TopicTechNews.AllowedFor(TierFree))
	assert.True(t, TopicTechNews.AllowedFor(TierPremium))
	assert.False(t, Topic("gardening").AllowedFor(TierPremium))

	bad := DisallowedTopics(TierFree, []Topic{TopicCrypto, TopicHealth, TopicBusiness})
	assert.Equal(t, []Topic{TopicHealth, TopicBusiness}, bad)
}

func TestParseTopics(t *testing.T) {
	got, err := ParseTopics([]string{"AI-Tools", "crypto", "ai_tools"})
	require.NoError(t, err)
	assert.Equal(t, []Topic{TopicAITools, TopicCrypto}, got)

	_, err = ParseTopics([]string{"gardening"})
	assert.Error(t, err)
}

func TestTopicForHour(t *testing.T) {
	cases := map[int]Topic{
		0: TopicProductivity, 4: TopicProductivity,
		5: TopicStockMarket, 10: TopicStockMarket,
		11: TopicAITools, 14: TopicAITools,
		15: TopicStartups, 18: TopicStartups,
		19: TopicCrypto, 22: TopicCrypto,
		23: TopicProductivity,
	}
	for hour, want := range cases {
		assert.Equal(t, want, TopicForHour(hour), "hour %d", hour)
	}
}

func TestSubscriberEligible(t *testing.T) {
	s := Subscriber{Tier: TierPro, Topics: []Topic{TopicCrypto}, DailyDigest: true}
	assert.True(t, s.Eligible(TopicCrypto, TierFree))
	assert.True(t, s.Eligible(TopicCrypto, TierPro))
	assert.False(t, s.Eligible(TopicCrypto, TierPremium))
	assert.False(t, s.Eligible(TopicAITools, TierFree))

	s.DailyDigest = false
	assert.False(t, s.Eligible(TopicCrypto, TierFree))

	s.DailyDigest = true
	s.Unsubscribed = true
	assert.False(t, s.Eligible(TopicCrypto, TierFree))
}

func TestSubscriberDisplayName(t *testing.T) {
	assert.Equal(t, "there", (&Subscriber{Name: "  "}).DisplayName())
	assert.Equal(t, "Ada", (&Subscriber{Name: "Ada"}).DisplayName())
}

func TestNewsletterTransitions(t *testing.T) {
	assert.True(t, NewsletterDraft.CanTransition(NewsletterSending))
	assert.False(t, NewsletterDraft.CanTransition(NewsletterSent))
	assert.True(t, NewsletterSending.CanTransition(NewsletterSent))
	assert.True(t, NewsletterSending.CanTransition(NewsletterFailed))
	assert.False(t, NewsletterSent.CanTransition(NewsletterFailed))
	assert.False(t, NewsletterFailed.CanTransition(NewsletterSending))
}

func TestTransactionTransitions(t *testing.T) {
	assert.True(t, TxPending.CanTransition(TxSucceeded))
	assert.True(t, TxPending.CanTransition(TxFailed))
	assert.True(t, TxSucceeded.CanTransition(TxRefunded))
	assert.False(t, TxFailed.CanTransition(TxRefunded))
	assert.False(t, TxRefunded.CanTransition(TxSucceeded))
}
