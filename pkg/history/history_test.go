package history_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/arnatech/noc/pkg/history"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}

func sampleHistory(t *testing.T) []history.Record {
	return []history.Record{
		{
			ID:             "1",
			ConversationID: "c1",
			UserMessage:    "Hi there, how are you?",
			ResponseText:   "I'm fine",
			CreatedAt:      mustTime(t, "2024-01-01T10:00:00Z"),
		},
		{
			ID:             "2",
			ConversationID: "c1",
			UserMessage:    "Bye",
			ResponseText:   "Goodbye",
			CreatedAt:      mustTime(t, "2024-01-01T10:05:00Z"),
		},
	}
}

func TestSummarizeExample(t *testing.T) {
	t.Parallel()

	records := sampleHistory(t)
	got := history.Summarize(records)

	require.Equal(t, []history.Summary{{
		ID:        "c1",
		Title:     "Hi there, how are you?",
		Date:      "2024-01-01",
		Timestamp: mustTime(t, "2024-01-01T10:00:00Z").UnixMilli(),
	}}, got)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	t.Run("empty input", func(t *testing.T) {
		got := history.Summarize(nil)
		require.NotNil(t, got)
		require.Empty(t, got)
	})

	t.Run("skips records without a conversation", func(t *testing.T) {
		got := history.Summarize([]history.Record{
			{ID: "1", UserMessage: "orphan", CreatedAt: mustTime(t, "2024-01-01T10:00:00Z")},
			{ID: "2", ConversationID: "c2", UserMessage: "kept", CreatedAt: mustTime(t, "2024-01-01T09:00:00Z")},
		})
		require.Len(t, got, 1)
		require.Equal(t, "c2", got[0].ID)
	})

	t.Run("most recent conversation first", func(t *testing.T) {
		got := history.Summarize([]history.Record{
			{ConversationID: "old", UserMessage: "a", CreatedAt: mustTime(t, "2024-01-01T10:00:00Z")},
			{ConversationID: "new", UserMessage: "b", CreatedAt: mustTime(t, "2024-03-01T10:00:00Z")},
			{ConversationID: "mid", UserMessage: "c", CreatedAt: mustTime(t, "2024-02-01T10:00:00Z")},
		})
		ids := make([]string, 0, len(got))
		for _, s := range got {
			ids = append(ids, s.ID)
		}
		require.Equal(t, []string{"new", "mid", "old"}, ids)
	})

	t.Run("first seen record defines the summary", func(t *testing.T) {
		got := history.Summarize([]history.Record{
			{ConversationID: "c1", UserMessage: "later question", CreatedAt: mustTime(t, "2024-01-02T10:00:00Z")},
			{ConversationID: "c1", UserMessage: "earlier question", CreatedAt: mustTime(t, "2024-01-01T10:00:00Z")},
		})
		require.Len(t, got, 1)
		require.Equal(t, "later question", got[0].Title)
		require.Equal(t, "2024-01-02", got[0].Date)
	})

	t.Run("date is taken in UTC", func(t *testing.T) {
		loc := time.FixedZone("WIB", 7*60*60)
		got := history.Summarize([]history.Record{
			{ConversationID: "c1", UserMessage: "x", CreatedAt: time.Date(2024, 1, 2, 3, 0, 0, 0, loc)},
		})
		require.Equal(t, "2024-01-01", got[0].Date)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		records := []history.Record{
			{ConversationID: "a", UserMessage: "1", CreatedAt: mustTime(t, "2024-01-01T10:00:00Z")},
			{ConversationID: "b", UserMessage: "2", CreatedAt: mustTime(t, "2024-02-01T10:00:00Z")},
		}
		before := append([]history.Record(nil), records...)
		_ = history.Summarize(records)
		require.Equal(t, before, records)
	})
}

func TestTitle(t *testing.T) {
	t.Parallel()

	exact := strings.Repeat("a", 30)
	require.Equal(t, exact, history.Title(exact))

	long := strings.Repeat("b", 31)
	require.Equal(t, strings.Repeat("b", 30)+"...", history.Title(long))

	require.Equal(t, "", history.Title(""))

	// Characters, not bytes
	multibyte := strings.Repeat("é", 30)
	require.Equal(t, multibyte, history.Title(multibyte))
}

func TestExpandExample(t *testing.T) {
	t.Parallel()

	got := history.Expand(sampleHistory(t), "c1")
	require.Len(t, got, 4)

	require.Equal(t, history.RoleUser, got[0].Role)
	require.Equal(t, "Hi there, how are you?", got[0].Content)
	require.Equal(t, "user-1", got[0].ID)

	require.Equal(t, history.RoleAssistant, got[1].Role)
	require.Equal(t, "I'm fine", got[1].Content)
	require.Equal(t, "ai-1", got[1].ID)

	require.Equal(t, history.RoleUser, got[2].Role)
	require.Equal(t, "Bye", got[2].Content)

	require.Equal(t, history.RoleAssistant, got[3].Role)
	require.Equal(t, "Goodbye", got[3].Content)

	require.Equal(t, got[0].Timestamp, got[1].Timestamp)
}

func TestExpand(t *testing.T) {
	t.Parallel()

	t.Run("unknown conversation", func(t *testing.T) {
		got := history.Expand(sampleHistory(t), "missing")
		require.NotNil(t, got)
		require.Empty(t, got)
	})

	t.Run("empty id never matches orphans", func(t *testing.T) {
		got := history.Expand([]history.Record{{ID: "1", UserMessage: "orphan"}}, "")
		require.Empty(t, got)
	})

	t.Run("sorted ascending and filtered", func(t *testing.T) {
		records := []history.Record{
			{ID: "3", ConversationID: "c1", UserMessage: "third", CreatedAt: mustTime(t, "2024-01-01T12:00:00Z")},
			{ID: "9", ConversationID: "other", UserMessage: "noise", CreatedAt: mustTime(t, "2024-01-01T11:00:00Z")},
			{ID: "1", ConversationID: "c1", UserMessage: "first", CreatedAt: mustTime(t, "2024-01-01T10:00:00Z")},
		}
		before := append([]history.Record(nil), records...)

		got := history.Expand(records, "c1")
		require.Len(t, got, 4)
		require.Equal(t, "first", got[0].Content)
		require.Equal(t, "third", got[2].Content)
		require.Equal(t, before, records, "input must not be reordered")
	})

	t.Run("chart config only on assistant", func(t *testing.T) {
		chart := json.RawMessage(`{"type":"bar","data":{"datasets":[]}}`)
		got := history.Expand([]history.Record{
			{ID: "1", ConversationID: "c1", UserMessage: "plot", ResponseText: "here", ResponseChartJSON: chart},
		}, "c1")
		require.Nil(t, got[0].ChartConfig)
		require.JSONEq(t, string(chart), string(got[1].ChartConfig))
	})
}

func TestLatest(t *testing.T) {
	t.Parallel()

	_, ok := history.Latest(nil)
	require.False(t, ok)

	latest, ok := history.Latest(history.Summarize(sampleHistory(t)))
	require.True(t, ok)
	require.Equal(t, "c1", latest.ID)
}

func TestRecordUnmarshal(t *testing.T) {
	t.Parallel()

	payload := `{"history":[
		{"id":1,"conversation_id":"c1","user_message":"Hi","response_text":"Hello",
		 "response_chart_json":null,"created_at":"2024-01-01T10:00:00.123456Z"},
		{"id":"2","conversation_id":null,"user_message":"x","response_text":"y",
		 "response_chart_json":{"type":"line"},"created_at":"2024-01-01T10:05:00"}
	]}`

	var body struct {
		History []history.Record `json:"history"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &body))
	require.Len(t, body.History, 2)

	first := body.History[0]
	require.Equal(t, "1", first.ID.String())
	require.Equal(t, "c1", first.ConversationID)
	require.Nil(t, first.ResponseChartJSON)
	require.Equal(t, 123456000, first.CreatedAt.Nanosecond())

	second := body.History[1]
	require.Equal(t, "2", second.ID.String())
	require.Empty(t, second.ConversationID)
	require.JSONEq(t, `{"type":"line"}`, string(second.ResponseChartJSON))
	require.Equal(t, time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC), second.CreatedAt)

	var bad history.Record
	require.Error(t, json.Unmarshal([]byte(`{"created_at":"yesterday"}`), &bad))
}
