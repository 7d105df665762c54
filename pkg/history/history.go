// Package history rebuilds conversations from the flat chat history feed.
//
// The backend returns one record per request/response exchange with no
// grouping. Summarize produces the conversation list shown in the sidebar
// and Expand produces the transcript of one conversation. Both functions
// are pure: they never touch their input and can be recomputed freely.
package history

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arnatech/noc/pkg/idx"
)

// TitleLength is the number of characters of the first user message kept
// as a conversation title.
const TitleLength = 30

const ellipsis = "..."

// Role identifies who authored a display message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Record is one exchange from GET /chat/history.
type Record struct {
	ID                idx.Ref         `json:"id"`
	ConversationID    string          `json:"conversation_id"`
	UserMessage       string          `json:"user_message"`
	ResponseText      string          `json:"response_text"`
	ResponseChartJSON json.RawMessage `json:"response_chart_json,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// timestampLayouts are tried in order for created_at. Values without a zone
// are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON decodes a record, accepting the timestamp formats the
// backend is known to emit and a null conversation_id.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	var raw struct {
		alias
		ConversationID *string `json:"conversation_id"`
		CreatedAt      string  `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record(raw.alias)
	if raw.ConversationID != nil {
		r.ConversationID = *raw.ConversationID
	}
	if isNullJSON(r.ResponseChartJSON) {
		r.ResponseChartJSON = nil
	}

	if raw.CreatedAt == "" {
		return nil
	}
	t, err := ParseTime(raw.CreatedAt)
	if err != nil {
		return err
	}
	r.CreatedAt = t
	return nil
}

// ParseTime parses a backend timestamp in any of the known layouts.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("history: invalid timestamp %q", s)
}

// Summary is one entry of the conversation list.
type Summary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Date      string `json:"date"`      // YYYY-MM-DD in UTC
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// Message is one rendered turn of a transcript.
type Message struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
	ChartConfig json.RawMessage `json:"chartConfig,omitempty"`
}

// Summarize groups records by conversation and returns one summary per
// conversation, most recent first.
//
// The first record seen for a conversation (in input order) defines its
// title and timestamp. Records without a conversation ID are skipped.
func Summarize(records []Record) []Summary {
	seen := make(map[string]struct{}, len(records))
	summaries := make([]Summary, 0)

	for _, rec := range records {
		if rec.ConversationID == "" {
			continue
		}
		if _, ok := seen[rec.ConversationID]; ok {
			continue
		}
		seen[rec.ConversationID] = struct{}{}

		summaries = append(summaries, Summary{
			ID:        rec.ConversationID,
			Title:     Title(rec.UserMessage),
			Date:      rec.CreatedAt.UTC().Format(time.DateOnly),
			Timestamp: rec.CreatedAt.UnixMilli(),
		})
	}

	slices.SortStableFunc(summaries, func(a, b Summary) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
	return summaries
}

// Title truncates a message to TitleLength characters, appending "..."
// only when something was cut.
func Title(message string) string {
	runes := []rune(message)
	if len(runes) <= TitleLength {
		return message
	}
	return string(runes[:TitleLength]) + ellipsis
}

// Expand returns the transcript of one conversation: a user message and an
// assistant message per record, oldest exchange first. An unknown
// conversation yields an empty slice.
func Expand(records []Record, conversationID string) []Message {
	matched := make([]Record, 0)
	for _, rec := range records {
		if rec.ConversationID == conversationID && conversationID != "" {
			matched = append(matched, rec)
		}
	}

	slices.SortStableFunc(matched, func(a, b Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	messages := make([]Message, 0, 2*len(matched))
	for _, rec := range matched {
		messages = append(messages,
			Message{
				ID:        "user-" + rec.ID.String(),
				Role:      RoleUser,
				Content:   rec.UserMessage,
				Timestamp: rec.CreatedAt,
			},
			Message{
				ID:          "ai-" + rec.ID.String(),
				Role:        RoleAssistant,
				Content:     rec.ResponseText,
				Timestamp:   rec.CreatedAt,
				ChartConfig: cloneRaw(rec.ResponseChartJSON),
			},
		)
	}
	return messages
}

// Latest returns the most recent conversation, if any. Summaries must come
// from Summarize.
func Latest(summaries []Summary) (Summary, bool) {
	if len(summaries) == 0 {
		return Summary{}, false
	}
	return summaries[0], true
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || isNullJSON(raw) {
		return nil
	}
	return slices.Clone(raw)
}

func isNullJSON(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
