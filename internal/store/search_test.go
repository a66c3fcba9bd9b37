package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearch_KnownFieldTerm(t *testing.T) {
	fields, barewords := parseSearch("subject:invoice")
	require.Len(t, fields, 1)
	assert.Equal(t, fieldSubject, fields[0].field)
	assert.Equal(t, "invoice", fields[0].value)
	assert.Empty(t, barewords)
}

func TestParseSearch_ToAliasesRecipient(t *testing.T) {
	fields, _ := parseSearch("to:bob@example.com")
	require.Len(t, fields, 1)
	assert.Equal(t, fieldRecipient, fields[0].field)
}

func TestParseSearch_UnknownFieldBecomesTwoBarewords(t *testing.T) {
	_, barewords := parseSearch("nope:value")
	assert.Equal(t, []string{"nope", "value"}, barewords)
}

func TestParseSearch_BarewordsAndFieldsCombine(t *testing.T) {
	fields, barewords := parseSearch("subject:invoice urgent")
	require.Len(t, fields, 1)
	assert.Equal(t, []string{"urgent"}, barewords)
}

func TestParseSearch_ColonWithNoFieldOrValue(t *testing.T) {
	_, barewords := parseSearch(":value value:")
	assert.Equal(t, []string{":value", "value:"}, barewords)
}

func TestLikePattern_WrapsValueUnescaped(t *testing.T) {
	assert.Equal(t, "%O'Brien%", likePattern("O'Brien"))
}

func TestSearch_SubjectField(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	invoice := sampleEmail()
	invoiceSubj := "Invoice #42"
	invoice.Subject = &invoiceSubj
	_, _, err := st.Save(ctx, invoice)
	require.NoError(t, err)

	other := sampleEmail()
	otherSubj := "Newsletter"
	other.Subject = &otherSubj
	_, _, err = st.Save(ctx, other)
	require.NoError(t, err)

	records, _, err := st.List(ctx, ListQuery{Page: 1, PerPage: 20, Search: "subject:Invoice"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Invoice #42", *records[0].Subject)
}

func TestSearch_RecipientField(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := sampleEmail()
	in.Recipients = []string{"specific@example.com"}
	_, _, err := st.Save(ctx, in)
	require.NoError(t, err)

	other := sampleEmail()
	other.Recipients = []string{"someone@example.com"}
	_, _, err = st.Save(ctx, other)
	require.NoError(t, err)

	records, _, err := st.List(ctx, ListQuery{Page: 1, PerPage: 20, Search: "recipient:specific"})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSearch_BarewordMatchesAcrossFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := sampleEmail()
	subj := "Weekly Standup"
	in.Subject = &subj
	_, _, err := st.Save(ctx, in)
	require.NoError(t, err)

	records, _, err := st.List(ctx, ListQuery{Page: 1, PerPage: 20, Search: "Standup"})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSearch_NoMatches(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.Save(ctx, sampleEmail())
	require.NoError(t, err)

	records, totalPages, err := st.List(ctx, ListQuery{Page: 1, PerPage: 20, Search: "nonexistentterm"})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, totalPages)
}

func TestSearch_ValueWithApostropheMatchesLiterally(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := sampleEmail()
	in.EnvelopeFrom = "o'brien@example.com"
	_, _, err := st.Save(ctx, in)
	require.NoError(t, err)

	records, _, err := st.List(ctx, ListQuery{Page: 1, PerPage: 20, Search: "from:o'brien"})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSearch_ValueContainingPercentMatches(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := sampleEmail()
	subj := "100% done"
	in.Subject = &subj
	_, _, err := st.Save(ctx, in)
	require.NoError(t, err)

	records, _, err := st.List(ctx, ListQuery{Page: 1, PerPage: 20, Search: "subject:100% done"})
	require.NoError(t, err)
	// "100%" and "done" are separate barewords/terms once tokenized by
	// whitespace; both match the same row via LIKE's substring search.
	assert.NotEmpty(t, records)
}
