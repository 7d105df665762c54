// Package chat orchestrates the assistant conversation: cached history,
// conversation lists and transcripts, and sending messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/arnatech/noc/pkg/history"
	"github.com/arnatech/noc/pkg/idx"
	"github.com/arnatech/noc/pkg/nocsdk"
	"github.com/arnatech/noc/pkg/slogx"
)

// DefaultHistoryTTL is how long a fetched history feed is served from cache.
const DefaultHistoryTTL = 5 * time.Minute

const (
	historyKey = "chat_history"

	// History fetches are retried once, after min(1s * 2^attempt, 30s).
	historyRetries = 1
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

var ErrEmptyMessage = errors.New("chat: message is empty")

// Backend is the subset of the chat API the service needs.
type Backend interface {
	ChatHistory(ctx context.Context) ([]history.Record, error)
	SendChat(ctx context.Context, message, conversationID string) (*nocsdk.ChatReply, error)
}

type Service struct {
	Backend Backend

	// Logger is used when the request context carries none.
	Logger *slog.Logger

	cache *cache.Cache
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a Service. A ttl of zero uses DefaultHistoryTTL.
func NewService(backend Backend, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &Service{
		Backend: backend,
		Logger:  slog.Default(),
		cache:   cache.New(ttl, 2*ttl),
		sleep:   sleepContext,
	}
}

// SendResult is the outcome of Send.
type SendResult struct {
	ConversationID string
	Reply          *nocsdk.ChatReply

	// Message is the assistant turn as it would appear in a transcript.
	Message history.Message
}

// History returns the history feed, from cache when fresh.
func (s *Service) History(ctx context.Context) ([]history.Record, error) {
	if x, found := s.cache.Get(historyKey); found {
		return x.([]history.Record), nil
	}

	records, err := s.fetchHistory(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.Set(historyKey, records, cache.DefaultExpiration)
	return records, nil
}

// Conversations lists conversations, most recent first.
func (s *Service) Conversations(ctx context.Context) ([]history.Summary, error) {
	records, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	return history.Summarize(records), nil
}

// Latest returns the most recent conversation, if any.
func (s *Service) Latest(ctx context.Context) (history.Summary, bool, error) {
	summaries, err := s.Conversations(ctx)
	if err != nil {
		return history.Summary{}, false, err
	}
	latest, ok := history.Latest(summaries)
	return latest, ok, nil
}

// Transcript returns the messages of one conversation in order.
func (s *Service) Transcript(ctx context.Context, conversationID string) ([]history.Message, error) {
	records, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	return history.Expand(records, conversationID), nil
}

// Send posts a message. Without a conversationID a new conversation is
// started with a client generated ID. The history cache is dropped after
// every successful send.
func (s *Service) Send(ctx context.Context, message, conversationID string) (*SendResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if conversationID == "" {
		conversationID = idx.NewConversationID()
	}

	log := slogx.FromContextOr(ctx, s.Logger).With(slog.String("conversation_id", conversationID))

	reply, err := s.Backend.SendChat(ctx, message, conversationID)
	if err != nil {
		log.Warn("failed to send chat message", slog.Any("error", err))
		return nil, err
	}
	s.Invalidate()

	return &SendResult{
		ConversationID: conversationID,
		Reply:          reply,
		Message: history.Message{
			ID:          idx.New().String(),
			Role:        history.RoleAssistant,
			Content:     reply.Text,
			Timestamp:   time.Now().UTC(),
			ChartConfig: reply.Chart,
		},
	}, nil
}

// Invalidate drops the cached history.
func (s *Service) Invalidate() {
	s.cache.Delete(historyKey)
}

func (s *Service) fetchHistory(ctx context.Context) ([]history.Record, error) {
	log := slogx.FromContextOr(ctx, s.Logger)

	var err error
	for attempt := 0; ; attempt++ {
		var records []history.Record
		records, err = s.Backend.ChatHistory(ctx)
		if err == nil {
			return records, nil
		}
		if attempt >= historyRetries || !retryable(err) {
			break
		}

		delay := RetryDelay(attempt)
		log.Debug("retrying history fetch", slog.Int("attempt", attempt+1), slog.Duration("delay", delay), slog.Any("error", err))
		if serr := s.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}
	return nil, fmt.Errorf("failed to load history: %w", err)
}

// RetryDelay is the backoff before retry number attempt (zero based).
func RetryDelay(attempt int) time.Duration {
	d := retryBaseDelay
	for range attempt {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

// retryable rejects failures a second attempt cannot fix: the session has
// already ended or the caller gave up.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, nocsdk.ErrUnauthorized),
		errors.Is(err, nocsdk.ErrPermissionDenied),
		errors.Is(err, nocsdk.ErrRefreshFailed):
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
