package domain

import (
	"fmt"
	"strings"
)

// Topic is a content category a subscriber can opt into.
type Topic string

const (
	TopicAITools       Topic = "ai_tools"
	TopicStockMarket   Topic = "stock_market"
	TopicCrypto        Topic = "crypto"
	TopicStartups      Topic = "startups"
	TopicProductivity  Topic = "productivity"
	TopicTechNews      Topic = "tech_news"
	TopicBusiness      Topic = "business"
	TopicScience       Topic = "science"
	TopicWorldNews     Topic = "world_news"
	TopicHealth        Topic = "health"
	TopicEntertainment Topic = "entertainment"
)

// TopicInfo describes a catalogue entry.
type TopicInfo struct {
	Topic   Topic  `json:"topic"`
	Label   string `json:"label"`
	MinTier Tier   `json:"min_tier"`
}

// Catalogue is the fixed topic list in display order.
var Catalogue = []TopicInfo{
	{TopicAITools, "AI Tools", TierFree},
	{TopicStockMarket, "Stock Market", TierFree},
	{TopicCrypto, "Crypto", TierFree},
	{TopicStartups, "Startups", TierFree},
	{TopicProductivity, "Productivity", TierFree},
	{TopicTechNews, "Tech News", TierPro},
	{TopicBusiness, "Business", TierPro},
	{TopicScience, "Science", TierPro},
	{TopicWorldNews, "World News", TierPremium},
	{TopicHealth, "Health", TierPremium},
	{TopicEntertainment, "Entertainment", TierPremium},
}

func lookupTopic(t Topic) (TopicInfo, bool) {
	for _, info := range Catalogue {
		if info.Topic == t {
			return info, true
		}
	}
	return TopicInfo{}, false
}

// Valid reports whether t is in the catalogue.
func (t Topic) Valid() bool {
	_, ok := lookupTopic(t)
	return ok
}

// Label returns the display name, or the raw value for unknown topics.
func (t Topic) Label() string {
	if info, ok := lookupTopic(t); ok {
		return info.Label
	}
	return string(t)
}

// MinTier returns the lowest tier allowed to enable t.
func (t Topic) MinTier() Tier {
	if info, ok := lookupTopic(t); ok {
		return info.MinTier
	}
	return ""
}

// AllowedFor reports whether a subscriber on tier may enable t.
func (t Topic) AllowedFor(tier Tier) bool {
	min := t.MinTier()
	return min != "" && tier.Receives(min)
}

// AllowedTopics returns every topic a tier may enable.
func AllowedTopics(tier Tier) []Topic {
	var out []Topic
	for _, info := range Catalogue {
		if info.Topic.AllowedFor(tier) {
			out = append(out, info.Topic)
		}
	}
	return out
}

// DisallowedTopics returns the members of topics that tier may not enable.
func DisallowedTopics(tier Tier, topics []Topic) []Topic {
	var out []Topic
	for _, t := range topics {
		if !t.AllowedFor(tier) {
			out = append(out, t)
		}
	}
	return out
}

// ParseTopic parses a topic name. Hyphens and case are normalized, so
// "AI-Tools" parses as ai_tools.
func ParseTopic(s string) (Topic, error) {
	t := Topic(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !t.Valid() {
		return "", fmt.Errorf("unknown topic %q", s)
	}
	return t, nil
}

// ParseTopics parses a list of topic names, dropping duplicates.
func ParseTopics(names []string) ([]Topic, error) {
	seen := make(map[Topic]bool, len(names))
	out := make([]Topic, 0, len(names))
	for _, n := range names {
		t, err := ParseTopic(n)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// TopicForHour picks the auto-send topic for an hour of the day (UTC).
func TopicForHour(hour int) Topic {
	switch {
	case hour >= 5 && hour < 11:
		return TopicStockMarket
	case hour >= 11 && hour < 15:
		return TopicAITools
	case hour >= 15 && hour < 19:
		return TopicStartups
	case hour >= 19 && hour < 23:
		return TopicCrypto
	default:
		return TopicProductivity
	}
}
