package nocsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/arnatech/noc/pkg/history"
	"github.com/arnatech/noc/pkg/idx"
)

// PathDocuments is the document collection, relative to the chat base URL.
const PathDocuments = "/documents/"

// Document is a reference document indexed by the RAG backend.
type Document struct {
	ID             idx.Ref   `json:"id"`
	Title          string    `json:"title"`
	SourceFilename string    `json:"source_filename,omitempty"`
	MimeType       string    `json:"mime_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Content is only returned by GetDocument.
	Content string `json:"content,omitempty"`
}

// UnmarshalJSON accepts the timestamp layouts the backend emits.
func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	var raw struct {
		alias
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = Document(raw.alias)
	for _, f := range []struct {
		in  string
		out *time.Time
	}{
		{raw.CreatedAt, &d.CreatedAt},
		{raw.UpdatedAt, &d.UpdatedAt},
	} {
		if f.in == "" {
			continue
		}
		t, err := history.ParseTime(f.in)
		if err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
		*f.out = t
	}
	return nil
}

// DocumentList is the body of GET /documents/.
type DocumentList struct {
	Count     int        `json:"count"`
	Documents []Document `json:"documents"`
}

// ListDocuments returns every document visible to the user.
func (c *Client) ListDocuments(ctx context.Context) (*DocumentList, error) {
	var list DocumentList
	if err := c.doJSON(ctx, http.MethodGet, PathDocuments, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if list.Documents == nil {
		list.Documents = []Document{}
	}
	return &list, nil
}

// GetDocument returns one document including its content.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := c.doJSON(ctx, http.MethodGet, documentPath(id), nil, &doc); err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return &doc, nil
}

// UploadDocument uploads r as a multipart form with fields "file" and
// "title". The part's content type is sniffed from the data. An empty
// title is omitted and the backend derives one.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader, title string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	body, contentType, err := encodeUpload(filepath.Base(filename), data, title)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   PathDocuments,
		Body:   body,
		Header: http.Header{"Content-Type": {contentType}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	var doc Document
	if len(resp.Body) > 0 {
		if err := resp.Decode(&doc); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// UpdateDocumentTitle renames a document.
func (c *Client) UpdateDocumentTitle(ctx context.Context, id, title string) (*Document, error) {
	var doc Document
	if err := c.doJSON(ctx, http.MethodPatch, documentPath(id), map[string]string{"title": title}, &doc); err != nil {
		return nil, fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return &doc, nil
}

// DeleteDocument removes a document.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, documentPath(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func documentPath(id string) string {
	return PathDocuments + url.PathEscape(id) + "/"
}

// encodeUpload builds the multipart body in memory so the request can be
// replayed after a token refresh.
func encodeUpload(filename string, data []byte, title string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": filename,
	}))
	header.Set("Content-Type", mimetype.Detect(data).String())

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	if title = strings.TrimSpace(title); title != "" {
		if err := w.WriteField("title", title); err != nil {
			return nil, "", fmt.Errorf("failed to write title: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
