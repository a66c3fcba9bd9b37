package httpapi

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfang/mailfang/internal/store"
)

func seedEmailWithAttachment(t *testing.T, ts *testServer, filename, contentType string, data []byte) (emailID, attachmentID string) {
	t.Helper()
	emailID, _, err := ts.store.Save(context.Background(), store.NewEmail{
		EnvelopeFrom: "alice@example.com",
		Recipients:   []string{"bob@example.com"},
		RawBody:      []byte("From: alice@example.com\r\n\r\nhi\r\n"),
		Attachments: []store.NewAttachment{
			{Filename: &filename, ContentType: &contentType, Data: data},
		},
	})
	require.NoError(t, err)

	full, err := ts.store.GetFull(context.Background(), emailID)
	require.NoError(t, err)
	require.Len(t, full.Attachments, 1)
	return emailID, full.Attachments[0].ID
}

func TestAttachmentGet_ReturnsDataAndHeaders(t *testing.T) {
	ts := newTestServer(t)
	_, attID := seedEmailWithAttachment(t, ts, "report.pdf", "application/pdf", []byte("pdf-bytes"))

	resp := ts.get(t, "/api/attachments/"+attID)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "inline")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report.pdf")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), body)
}

func TestAttachmentGet_DefaultsContentTypeWhenUnset(t *testing.T) {
	ts := newTestServer(t)
	_, attID := seedEmailWithAttachment(t, ts, "", "", []byte("bytes"))

	resp := ts.get(t, "/api/attachments/"+attID)
	defer resp.Body.Close()
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "inline", resp.Header.Get("Content-Disposition"))
}

func TestAttachmentGet_NotFound(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/attachments/missing")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
