package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/mailfang/mailfang/internal/eventbus"
	"github.com/mailfang/mailfang/internal/observability"
	"github.com/mailfang/mailfang/internal/store"
)

// testServer bundles a live httptest.Server built from the real router, a
// store, and a bus, for black-box handler tests.
type testServer struct {
	*httptest.Server
	store *store.Store
	bus   *eventbus.Bus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, store.Migrate(ctx, st.DB()))

	bus := eventbus.New()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	srv := New(Config{
		Addr:        "127.0.0.1:0",
		CORSOrigins: []string{"*"},
		Store:       st,
		Bus:         bus,
		Metrics:     metrics,
		Gatherer:    registry,
	})

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, store: st, bus: bus}
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) delete(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, ts.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func seedEmail(t *testing.T, ts *testServer) string {
	t.Helper()
	subject := "Test subject"
	id, _, err := ts.store.Save(context.Background(), store.NewEmail{
		Subject:      &subject,
		EnvelopeFrom: "alice@example.com",
		Recipients:   []string{"bob@example.com"},
		RawBody:      []byte("From: alice@example.com\r\nTo: bob@example.com\r\n\r\nhi\r\n"),
		BodyText:     "hi",
		BodyHTML:     "<p>hi</p>",
		Headers:      map[string][]string{"To": {"bob@example.com"}},
		HeaderOrder:  []store.HeaderOccurrence{{Name: "To", Value: "bob@example.com"}},
	})
	require.NoError(t, err)
	require.NoError(t, ts.store.UpdateRendered(context.Background(), id, "<html><head></head><body><p>hi</p></body></html>"))
	return id
}
