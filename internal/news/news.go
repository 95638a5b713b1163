// Package news fetches current headlines per topic from RSS feeds. They
// back the public news endpoint and ground AI-generated newsletters.
package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/httpretry"
	"github.com/newsly/newsly/internal/pkg/logger"
)

// ErrNoFeeds is returned for a topic with no configured feeds.
var ErrNoFeeds = errors.New("no feeds configured for topic")

const maxLimit = 50

// Service fetches and caches headlines.
type Service struct {
	feeds  map[domain.Topic][]string
	http   httpretry.HTTPDoer
	parser *gofeed.Parser
	cache  Cache
	ttl    time.Duration
}

// NewService builds a Service. feeds maps topic names to RSS URLs; cache
// may be nil to disable caching.
func NewService(feeds map[string][]string, client httpretry.HTTPDoer, cache Cache, ttl time.Duration) *Service {
	m := make(map[domain.Topic][]string, len(feeds))
	for name, urls := range feeds {
		if t, err := domain.ParseTopic(name); err == nil {
			m[t] = urls
		}
	}
	if client == nil {
		client = httpretry.NewRetryClient(nil, 2)
	}
	return &Service{feeds: m, http: client, parser: gofeed.NewParser(), cache: cache, ttl: ttl}
}

// Headlines returns up to limit items for topic, newest first. Feeds that
// fail are skipped; the call fails only when every feed fails.
func (s *Service) Headlines(ctx context.Context, topic domain.Topic, limit int) ([]domain.Headline, error) {
	if limit <= 0 || limit > maxLimit {
		limit = 10
	}
	urls := s.feeds[topic]
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFeeds, topic)
	}

	key := "newsly:news:" + string(topic)
	if s.cache != nil {
		if items, ok := s.cache.Get(ctx, key); ok {
			return truncate(items, limit), nil
		}
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		items   []timedHeadline
		lastErr error
		okCount int
	)
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			got, err := s.fetch(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				logger.Warn("news: feed fetch failed", "url", u, "error", err)
				return
			}
			okCount++
			items = append(items, got...)
		}(u)
	}
	wg.Wait()

	if okCount == 0 {
		return nil, fmt.Errorf("fetch %s headlines: %w", topic, lastErr)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].at.After(items[j].at) })
	out := make([]domain.Headline, 0, len(items))
	for _, it := range items {
		out = append(out, it.Headline)
	}
	if len(out) > maxLimit {
		out = out[:maxLimit]
	}

	if s.cache != nil && len(out) > 0 {
		s.cache.Set(ctx, key, out, s.ttl)
	}
	return truncate(out, limit), nil
}

type timedHeadline struct {
	domain.Headline
	at time.Time
}

func (s *Service) fetch(ctx context.Context, url string) ([]timedHeadline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Newsly/1.0 (+https://newsly.app)")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s: status %d", url, resp.StatusCode)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	out := make([]timedHeadline, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}
		h := timedHeadline{Headline: domain.Headline{
			Title:   strings.TrimSpace(item.Title),
			Link:    item.Link,
			Source:  feed.Title,
			Summary: summarize(item.Description, 280),
		}}
		if item.PublishedParsed != nil {
			h.at = item.PublishedParsed.UTC()
			h.PublishedAt = h.at.Format(time.RFC3339)
		}
		out = append(out, h)
	}
	return out, nil
}

func truncate(items []domain.Headline, limit int) []domain.Headline {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

// summarize strips tags and cuts s to at most n runes.
func summarize(s string, n int) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if runes := []rune(out); len(runes) > n {
		out = string(runes[:n]) + "…"
	}
	return out
}
