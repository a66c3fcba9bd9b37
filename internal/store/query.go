package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mailfang/mailfang/internal/errs"
)

// List returns a page of emails newest-first, optionally filtered by the
// search grammar in spec.md §4.9.1.
func (s *Store) List(ctx context.Context, q ListQuery) ([]EmailListRecord, int, error) {
	return s.listWhere(ctx, q, "1=1", nil)
}

// ListByRecipient restricts List to emails whose recipient set contains
// address. An address with no matching emails returns an empty page and
// zero total pages, not an error.
func (s *Store) ListByRecipient(ctx context.Context, address string, q ListQuery) ([]EmailListRecord, int, error) {
	where := `EXISTS (
		SELECT 1 FROM email_envelope_recipients eer
		JOIN envelope_recipients r ON r.id = eer.recipient_id
		WHERE eer.email_id = e.id AND r.address = ?
	)`
	return s.listWhere(ctx, q, where, []any{address})
}

func (s *Store) listWhere(ctx context.Context, q ListQuery, baseWhere string, baseArgs []any) ([]EmailListRecord, int, error) {
	where := baseWhere
	args := append([]any{}, baseArgs...)

	if q.Search != "" {
		searchWhere, searchArgs := buildSearchSQL(q.Search)
		where = fmt.Sprintf("(%s) AND (%s)", where, searchWhere)
		args = append(args, searchArgs...)
	}

	var total int
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM emails e WHERE %s`, where)
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, errs.New(errs.KindStorage, "store.List.count", err)
	}

	if total == 0 {
		return []EmailListRecord{}, 0, nil
	}

	listSQL := fmt.Sprintf(`
		SELECT e.id, e.subject, e.date, e.created_at, e.envelope_from, e.read
		FROM emails e WHERE %s
		ORDER BY e.created_at DESC
		LIMIT ? OFFSET ?`, where)
	rows, err := s.db.QueryContext(ctx, listSQL, append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return nil, 0, errs.New(errs.KindStorage, "store.List.query", err)
	}
	defer rows.Close()

	var records []EmailListRecord
	var ids []string
	for rows.Next() {
		var r EmailListRecord
		var dateStr, subject sql.NullString
		var createdAtStr string
		if err := rows.Scan(&r.ID, &subject, &dateStr, &createdAtStr, &r.EnvelopeFrom, &r.Read); err != nil {
			return nil, 0, errs.New(errs.KindStorage, "store.List.scan", err)
		}
		if subject.Valid {
			r.Subject = &subject.String
		}
		if dateStr.Valid {
			if t, err := time.Parse(time.RFC3339, dateStr.String); err == nil {
				r.Date = &t
			}
		}
		if t, err := time.Parse(time.RFC3339, createdAtStr); err == nil {
			r.CreatedAt = t
		}
		records = append(records, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errs.New(errs.KindStorage, "store.List.rows", err)
	}

	if err := s.hydrateRecipientsAndAttachments(ctx, records, ids); err != nil {
		return nil, 0, err
	}

	totalPages := (total + q.PerPage - 1) / q.PerPage
	return records, totalPages, nil
}

func (s *Store) hydrateRecipientsAndAttachments(ctx context.Context, records []EmailListRecord, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	byID := make(map[string]*EmailListRecord, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}

	placeholders, args := inClause(ids)
	recipientRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT eer.email_id, r.address FROM email_envelope_recipients eer
		JOIN envelope_recipients r ON r.id = eer.recipient_id
		WHERE eer.email_id IN (%s)`, placeholders), args...)
	if err != nil {
		return errs.New(errs.KindStorage, "store.hydrateRecipients", err)
	}
	defer recipientRows.Close()
	for recipientRows.Next() {
		var emailID, address string
		if err := recipientRows.Scan(&emailID, &address); err != nil {
			return errs.New(errs.KindStorage, "store.hydrateRecipients.scan", err)
		}
		if rec, ok := byID[emailID]; ok {
			rec.Recipients = append(rec.Recipients, address)
		}
	}

	toHeaderRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT email_id, value FROM headers WHERE name = 'To' AND email_id IN (%s)`, placeholders), args...)
	if err != nil {
		return errs.New(errs.KindStorage, "store.hydrateToHeader", err)
	}
	defer toHeaderRows.Close()
	for toHeaderRows.Next() {
		var emailID, value string
		if err := toHeaderRows.Scan(&emailID, &value); err != nil {
			return errs.New(errs.KindStorage, "store.hydrateToHeader.scan", err)
		}
		if rec, ok := byID[emailID]; ok {
			rec.ToHeader = append(rec.ToHeader, value)
		}
	}

	attachmentRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT email_id FROM attachments WHERE email_id IN (%s)`, placeholders), args...)
	if err != nil {
		return errs.New(errs.KindStorage, "store.hydrateAttachments", err)
	}
	defer attachmentRows.Close()
	for attachmentRows.Next() {
		var emailID string
		if err := attachmentRows.Scan(&emailID); err != nil {
			return errs.New(errs.KindStorage, "store.hydrateAttachments.scan", err)
		}
		if rec, ok := byID[emailID]; ok {
			rec.HasAttachments = true
		}
	}
	return nil
}

func inClause(ids []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}

// Get returns the list projection for id (envelope fields, recipients, To
// header and has_attachments); GetFull returns the record with headers,
// bodies and attachment metadata.
func (s *Store) Get(ctx context.Context, id string) (EmailListRecord, error) {
	var r EmailListRecord
	var dateStr, subject sql.NullString
	var createdAtStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, subject, date, created_at, envelope_from, read FROM emails WHERE id = ?`, id,
	).Scan(&r.ID, &subject, &dateStr, &createdAtStr, &r.EnvelopeFrom, &r.Read)
	if err == sql.ErrNoRows {
		return EmailListRecord{}, errs.Newf(errs.KindNotFound, "store.Get", "email %s not found", id)
	}
	if err != nil {
		return EmailListRecord{}, errs.New(errs.KindStorage, "store.Get", err)
	}
	if subject.Valid {
		r.Subject = &subject.String
	}
	if dateStr.Valid {
		if t, err := time.Parse(time.RFC3339, dateStr.String); err == nil {
			r.Date = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAtStr); err == nil {
		r.CreatedAt = t
	}
	records := []EmailListRecord{r}
	if err := s.hydrateRecipientsAndAttachments(ctx, records, []string{id}); err != nil {
		return EmailListRecord{}, err
	}
	return records[0], nil
}

// GetFull returns headers and attachment metadata in addition to the list
// projection, for the HTTP API's single-record read.
func (s *Store) GetFull(ctx context.Context, id string) (EmailRecord, error) {
	listRec, err := s.Get(ctx, id)
	if err != nil {
		return EmailRecord{}, err
	}

	var messageID sql.NullString
	var size int64
	var bodyText, bodyHTML string
	err = s.db.QueryRowContext(ctx, `SELECT message_id, size, body_text, body_html FROM emails WHERE id = ?`, id).
		Scan(&messageID, &size, &bodyText, &bodyHTML)
	if err != nil {
		return EmailRecord{}, errs.New(errs.KindStorage, "store.GetFull", err)
	}

	headers, err := s.headersFor(ctx, id)
	if err != nil {
		return EmailRecord{}, err
	}

	attachments, err := s.attachmentMetaFor(ctx, id)
	if err != nil {
		return EmailRecord{}, err
	}

	rec := EmailRecord{
		ID:           listRec.ID,
		Subject:      listRec.Subject,
		Date:         listRec.Date,
		Headers:      headers,
		CreatedAt:    listRec.CreatedAt,
		EnvelopeFrom: listRec.EnvelopeFrom,
		Size:         size,
		BodyText:     bodyText,
		BodyHTML:     bodyHTML,
		Read:         listRec.Read,
		Recipients:   listRec.Recipients,
		Attachments:  attachments,
	}
	if messageID.Valid {
		rec.MessageID = &messageID.String
	}
	return rec, nil
}

func (s *Store) headersFor(ctx context.Context, emailID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM headers WHERE email_id = ? ORDER BY rowid ASC`, emailID)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "store.headersFor", err)
	}
	defer rows.Close()
	out := map[string][]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, errs.New(errs.KindStorage, "store.headersFor.scan", err)
		}
		out[name] = append(out[name], value)
	}
	return out, rows.Err()
}

func (s *Store) attachmentMetaFor(ctx context.Context, emailID string) ([]AttachmentMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, content_type, size, content_id, disposition, created_at
		FROM attachments WHERE email_id = ? ORDER BY rowid ASC`, emailID)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "store.attachmentMetaFor", err)
	}
	defer rows.Close()

	var out []AttachmentMeta
	for rows.Next() {
		var m AttachmentMeta
		var filename, contentType, contentID, disposition sql.NullString
		var createdAtStr string
		if err := rows.Scan(&m.ID, &filename, &contentType, &m.Size, &contentID, &disposition, &createdAtStr); err != nil {
			return nil, errs.New(errs.KindStorage, "store.attachmentMetaFor.scan", err)
		}
		if filename.Valid {
			m.Filename = &filename.String
		}
		if contentType.Valid {
			m.ContentType = &contentType.String
		}
		if contentID.Valid {
			m.ContentID = &contentID.String
		}
		if disposition.Valid {
			m.Disposition = &disposition.String
		}
		if t, err := time.Parse(time.RFC3339, createdAtStr); err == nil {
			m.CreatedAt = t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetRaw returns the decompressed raw RFC 822 bytes as UTF-8 text.
func (s *Store) GetRaw(ctx context.Context, id string) (string, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT raw_data FROM emails WHERE id = ?`, id).Scan(&compressed)
	if err == sql.ErrNoRows {
		return "", errs.Newf(errs.KindNotFound, "store.GetRaw", "email %s not found", id)
	}
	if err != nil {
		return "", errs.New(errs.KindStorage, "store.GetRaw", err)
	}
	raw, err := gzipDecompress(compressed)
	if err != nil {
		return "", errs.New(errs.KindStorage, "store.GetRaw.decompress", err)
	}
	if !utf8.Valid(raw) {
		return "", errs.Newf(errs.KindInvalidData, "store.GetRaw", "email %s raw bytes are not valid UTF-8", id)
	}
	return string(raw), nil
}

// GetRendered returns rendered_body_html, or NotFound if it is null.
func (s *Store) GetRendered(ctx context.Context, id string) (string, error) {
	var rendered sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT rendered_body_html FROM emails WHERE id = ?`, id).Scan(&rendered)
	if err == sql.ErrNoRows {
		return "", errs.Newf(errs.KindNotFound, "store.GetRendered", "email %s not found", id)
	}
	if err != nil {
		return "", errs.New(errs.KindStorage, "store.GetRendered", err)
	}
	if !rendered.Valid {
		return "", errs.Newf(errs.KindNotFound, "store.GetRendered", "email %s has no rendered html", id)
	}
	return rendered.String, nil
}

// GetAttachment returns decompressed attachment bytes and metadata.
func (s *Store) GetAttachment(ctx context.Context, id string) (AttachmentContent, error) {
	var a AttachmentContent
	var filename, contentType sql.NullString
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT id, filename, content_type, data FROM attachments WHERE id = ?`, id).
		Scan(&a.ID, &filename, &contentType, &compressed)
	if err == sql.ErrNoRows {
		return AttachmentContent{}, errs.Newf(errs.KindNotFound, "store.GetAttachment", "attachment %s not found", id)
	}
	if err != nil {
		return AttachmentContent{}, errs.New(errs.KindStorage, "store.GetAttachment", err)
	}
	data, err := gzipDecompress(compressed)
	if err != nil {
		return AttachmentContent{}, errs.New(errs.KindStorage, "store.GetAttachment.decompress", err)
	}
	if filename.Valid {
		a.Filename = &filename.String
	}
	if contentType.Valid {
		a.ContentType = &contentType.String
	}
	a.Data = data
	return a, nil
}

// Counts returns totals and the per-recipient histogram, address ascending.
func (s *Store) Counts(ctx context.Context) (EmailStats, error) {
	var stats EmailStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails`).Scan(&stats.Inbox); err != nil {
		return EmailStats{}, errs.New(errs.KindStorage, "store.Counts.inbox", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails WHERE read = 0`).Scan(&stats.Unread); err != nil {
		return EmailStats{}, errs.New(errs.KindStorage, "store.Counts.unread", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.address, COUNT(*) FROM email_envelope_recipients eer
		JOIN envelope_recipients r ON r.id = eer.recipient_id
		GROUP BY r.address ORDER BY r.address ASC`)
	if err != nil {
		return EmailStats{}, errs.New(errs.KindStorage, "store.Counts.recipients", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rc RecipientCount
		if err := rows.Scan(&rc.Recipient, &rc.Count); err != nil {
			return EmailStats{}, errs.New(errs.KindStorage, "store.Counts.recipients.scan", err)
		}
		stats.Recipients = append(stats.Recipients, rc)
	}
	return stats, rows.Err()
}
