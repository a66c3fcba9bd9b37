package store

import (
	"strings"
)

// searchField is a recognized field: prefix in the query grammar (§4.9.1).
type searchField string

const (
	fieldSubject    searchField = "subject"
	fieldFrom       searchField = "from"
	fieldRecipient  searchField = "recipient"
	fieldText       searchField = "text"
	fieldHTML       searchField = "html"
	fieldAttachment searchField = "attachment"
)

var knownFields = map[string]searchField{
	"subject":    fieldSubject,
	"from":       fieldFrom,
	"recipient":  fieldRecipient,
	"to":         fieldRecipient, // alias
	"text":       fieldText,
	"html":       fieldHTML,
	"attachment": fieldAttachment,
}

type fieldTerm struct {
	field searchField
	value string
}

// parseSearch tokenizes query input per the grammar in spec.md §4.9.1:
// whitespace-separated terms, each either `field:value` or a bareword.
// An unknown field name is not an error: the whole `name:value` token
// falls through as two barewords ("name" and "value"), matching the
// original implementation's test_malformed_field behavior.
func parseSearch(query string) (fields []fieldTerm, barewords []string) {
	for _, tok := range strings.Fields(query) {
		name, value, ok := splitFieldToken(tok)
		if !ok {
			barewords = append(barewords, tok)
			continue
		}
		field, known := knownFields[strings.ToLower(name)]
		if !known {
			barewords = append(barewords, name, value)
			continue
		}
		fields = append(fields, fieldTerm{field: field, value: value})
	}
	return fields, barewords
}

// splitFieldToken splits "field:value" on the first colon, rejecting tokens
// with an empty field or empty value (those are barewords containing a
// colon, not field terms).
func splitFieldToken(tok string) (field, value string, ok bool) {
	idx := strings.IndexByte(tok, ':')
	if idx <= 0 || idx == len(tok)-1 {
		return "", "", false
	}
	return tok[:idx], tok[idx+1:], true
}

func likePattern(value string) string {
	return "%" + value + "%"
}

// buildSearchSQL returns a SQL boolean expression (joined with AND) plus its
// bound arguments, covering both field terms and barewords, against an
// `emails e` aliased FROM clause.
func buildSearchSQL(query string) (whereSQL string, args []any) {
	fields, barewords := parseSearch(query)
	var conds []string

	for _, f := range fields {
		pattern := likePattern(f.value)
		switch f.field {
		case fieldSubject:
			conds = append(conds, `e.subject LIKE ?`)
			args = append(args, pattern)
		case fieldFrom:
			conds = append(conds, `(e.envelope_from LIKE ? OR EXISTS (
				SELECT 1 FROM headers h WHERE h.email_id = e.id AND h.name = 'From' AND h.value LIKE ?
			))`)
			args = append(args, pattern, pattern)
		case fieldRecipient:
			conds = append(conds, `(EXISTS (
				SELECT 1 FROM email_envelope_recipients eer
				JOIN envelope_recipients r ON r.id = eer.recipient_id
				WHERE eer.email_id = e.id AND r.address LIKE ?
			) OR EXISTS (
				SELECT 1 FROM headers h WHERE h.email_id = e.id AND h.name IN ('To', 'Cc', 'Bcc') AND h.value LIKE ?
			))`)
			args = append(args, pattern, pattern)
		case fieldText:
			conds = append(conds, `e.body_text LIKE ?`)
			args = append(args, pattern)
		case fieldHTML:
			conds = append(conds, `e.body_html LIKE ?`)
			args = append(args, pattern)
		case fieldAttachment:
			conds = append(conds, `EXISTS (
				SELECT 1 FROM attachments a WHERE a.email_id = e.id AND a.filename LIKE ?
			)`)
			args = append(args, pattern)
		}
	}

	for _, word := range barewords {
		pattern := likePattern(word)
		conds = append(conds, `(
			e.subject LIKE ? OR e.envelope_from LIKE ? OR e.body_text LIKE ? OR
			EXISTS (
				SELECT 1 FROM email_envelope_recipients eer
				JOIN envelope_recipients r ON r.id = eer.recipient_id
				WHERE eer.email_id = e.id AND r.address LIKE ?
			) OR EXISTS (
				SELECT 1 FROM headers h WHERE h.email_id = e.id AND h.name IN ('From', 'To', 'Cc', 'Bcc') AND h.value LIKE ?
			)
		)`)
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}

	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}
