// Package segment selects the recipients of a dispatch run.
//
// Automatic sends go to subscribers who are active, want the daily digest,
// have the run's topic enabled, and sit on the target tier or above. Admin
// sends can narrow the audience by subscriber IDs or by topics.
package segment

import (
	"context"
	"errors"
	"fmt"

	"github.com/newsly/newsly/internal/domain"
)

// ErrInvalidSegment is returned for an unknown tier or topic.
var ErrInvalidSegment = errors.New("invalid segment")

// Query is the filter a Source evaluates. Unsubscribed subscribers are
// always excluded. Empty fields do not filter.
type Query struct {
	Tiers         []domain.Tier
	Topic         domain.Topic
	AnyTopics     []domain.Topic
	IDs           []string
	RequireDigest bool
}

// Source loads subscribers matching a Query. The postgres subscriber
// repository implements it.
type Source interface {
	FindSubscribers(ctx context.Context, q Query) ([]domain.Subscriber, error)
}

// Selector resolves audiences for dispatch runs.
type Selector struct {
	src Source
}

// NewSelector creates a Selector over src.
func NewSelector(src Source) *Selector {
	return &Selector{src: src}
}

// Eligible returns the audience of an automatic send. An empty result is
// valid.
func (s *Selector) Eligible(ctx context.Context, topic domain.Topic, target domain.Tier) ([]domain.Subscriber, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: tier %q", ErrInvalidSegment, target)
	}
	if !topic.Valid() {
		return nil, fmt.Errorf("%w: topic %q", ErrInvalidSegment, topic)
	}
	subs, err := s.src.FindSubscribers(ctx, Query{
		Tiers:         domain.Inclusion(target),
		Topic:         topic,
		RequireDigest: true,
	})
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", topic, target, err)
	}
	return subs, nil
}

// Target narrows an admin send.
type Target struct {
	SubscriberIDs []string
	Topics        []domain.Topic
}

// Targeted returns the audience of an admin send. IDs win over topics;
// with neither, every active subscriber is selected. The bool reports
// whether the audience was narrowed.
func (s *Selector) Targeted(ctx context.Context, t Target) ([]domain.Subscriber, bool, error) {
	var q Query
	switch {
	case len(t.SubscriberIDs) > 0:
		q.IDs = t.SubscriberIDs
	case len(t.Topics) > 0:
		for _, topic := range t.Topics {
			if !topic.Valid() {
				return nil, false, fmt.Errorf("%w: topic %q", ErrInvalidSegment, topic)
			}
		}
		q.AnyTopics = t.Topics
	}
	subs, err := s.src.FindSubscribers(ctx, q)
	if err != nil {
		return nil, false, fmt.Errorf("select targeted: %w", err)
	}
	return subs, len(q.IDs) > 0 || len(q.AnyTopics) > 0, nil
}

// Matches evaluates q against one subscriber in memory. Sources that
// cannot push the filter down, and tests, use it.
func (q Query) Matches(s *domain.Subscriber) bool {
	if s.Unsubscribed {
		return false
	}
	if q.RequireDigest && !s.DailyDigest {
		return false
	}
	if len(q.Tiers) > 0 {
		ok := false
		for _, t := range q.Tiers {
			if s.Tier == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.Topic != "" && !s.HasTopic(q.Topic) {
		return false
	}
	if len(q.AnyTopics) > 0 && !s.HasAnyTopic(q.AnyTopics) {
		return false
	}
	if len(q.IDs) > 0 {
		ok := false
		for _, id := range q.IDs {
			if s.ID == id {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
