package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestStore opens a fresh in-memory SQLite database and applies every
// migration, giving each test an isolated schema.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	st, err := Open(ctx, "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, Migrate(ctx, st.DB()))
	return st
}

func sampleEmail() NewEmail {
	subject := "Hello"
	return NewEmail{
		Subject:      &subject,
		EnvelopeFrom: "alice@example.com",
		Recipients:   []string{"bob@example.com"},
		RawBody:      []byte("From: alice@example.com\r\nTo: bob@example.com\r\n\r\nhi\r\n"),
		BodyText:     "hi",
		Headers:      map[string][]string{"To": {"bob@example.com"}},
		HeaderOrder:  []HeaderOccurrence{{Name: "To", Value: "bob@example.com"}},
	}
}
