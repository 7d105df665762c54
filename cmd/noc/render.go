package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/arnatech/noc/pkg/history"
	"github.com/arnatech/noc/pkg/nocsdk"
)

var (
	userLabel      = color.New(color.FgCyan, color.Bold)
	assistantLabel = color.New(color.FgGreen, color.Bold)
	dimmed         = color.New(color.FgHiBlack)
)

func renderConversations(w io.Writer, summaries []history.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	for _, s := range summaries {
		_, _ = dimmed.Fprintf(w, "%s  ", s.Date)
		fmt.Fprintf(w, "%-34s ", s.Title)
		_, _ = dimmed.Fprintln(w, s.ID)
	}
}

func renderTranscript(w io.Writer, messages []history.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "No messages in this conversation.")
		return
	}
	for _, m := range messages {
		renderMessage(w, m)
	}
}

func renderMessage(w io.Writer, m history.Message) {
	label, name := assistantLabel, "Assistant"
	if m.Role == history.RoleUser {
		label, name = userLabel, "You"
	}

	_, _ = dimmed.Fprintf(w, "[%s] ", m.Timestamp.Local().Format(time.DateTime))
	_, _ = label.Fprintln(w, name)
	for _, line := range strings.Split(m.Content, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if len(m.ChartConfig) > 0 {
		_, _ = dimmed.Fprintf(w, "  [chart: %s]\n", chartType(m.ChartConfig))
	}
	fmt.Fprintln(w)
}

func renderDocuments(w io.Writer, docs []nocsdk.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents yet. Add your first document with `noc docs upload`.")
		return
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%-8s %-40s ", d.ID, d.Title)
		_, _ = dimmed.Fprintf(w, "%s %s", d.SourceFilename, d.MimeType)
		if !d.CreatedAt.IsZero() {
			_, _ = dimmed.Fprintf(w, " %s", d.CreatedAt.Local().Format(time.DateOnly))
		}
		fmt.Fprintln(w)
	}
}

// chartType returns the chart's "type" field or "unknown".
func chartType(raw json.RawMessage) string {
	var chart struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &chart); err != nil || chart.Type == "" {
		return "unknown"
	}
	return chart.Type
}

// filterDocuments keeps documents whose title contains search, ignoring
// case.
func filterDocuments(docs []nocsdk.Document, search string) []nocsdk.Document {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return docs
	}
	out := make([]nocsdk.Document, 0, len(docs))
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Title), search) {
			out = append(out, d)
		}
	}
	return out
}
