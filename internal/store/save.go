package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailfang/mailfang/internal/errs"
)

// Save performs the single ACID transaction described in spec.md §4.6:
// pre-generated attachment ids, the Email row, recipient upsert+join,
// attachments, then headers. Publication to the event bus happens after
// this call returns, never inside the transaction.
func (s *Store) Save(ctx context.Context, in NewEmail) (id string, listRecord EmailListRecord, err error) {
	id = uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save", err)
	}
	defer tx.Rollback()

	attachmentIDs := make([]string, len(in.Attachments))
	for i := range in.Attachments {
		attachmentIDs[i] = uuid.NewString()
	}

	rawCompressed, err := gzipCompress(in.RawBody)
	if err != nil {
		return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save.compressRaw", err)
	}

	var renderedHTML *string
	if in.BodyHTML != "" {
		renderedHTML = &in.BodyHTML // placeholder until CID rewriting overwrites this field via UpdateRendered
	}

	var dateStr *string
	if in.Date != nil {
		ds := in.Date.UTC().Format(time.RFC3339)
		dateStr = &ds
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO emails (id, message_id, subject, date, envelope_from, raw_data, size, body_text, body_html, rendered_body_html, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		id, in.MessageID, in.Subject, dateStr, in.EnvelopeFrom, rawCompressed, len(in.RawBody), in.BodyText, in.BodyHTML, renderedHTML, now.Format(time.RFC3339),
	)
	if err != nil {
		return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save.insertEmail", err)
	}

	recipients := dedupeTrimmedNonEmpty(in.Recipients)
	for _, addr := range recipients {
		recipientID, err := upsertRecipient(ctx, tx, addr)
		if err != nil {
			return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save.upsertRecipient", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO email_envelope_recipients (email_id, recipient_id) VALUES (?, ?)`,
			id, recipientID,
		); err != nil {
			return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save.insertJoin", err)
		}
	}

	for i, a := range in.Attachments {
		compressed, err := gzipCompress(a.Data)
		if err != nil {
			return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save.compressAttachment", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, email_id, filename, content_type, data, size, content_id, disposition, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			attachmentIDs[i], id, a.Filename, a.ContentType, compressed, len(a.Data), a.ContentID, a.Disposition, now.Format(time.RFC3339),
		); err != nil {
			return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save.insertAttachment", err)
		}
	}

	for _, h := range in.HeaderOrder {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO headers (id, email_id, name, value) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), id, h.Name, h.Value,
		); err != nil {
			return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save.insertHeader", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", EmailListRecord{}, errs.New(errs.KindStorage, "store.Save.commit", err)
	}

	var hasAttachments bool
	if len(in.Attachments) > 0 {
		hasAttachments = true
	}
	return id, EmailListRecord{
		ID:             id,
		Subject:        in.Subject,
		Date:           in.Date,
		CreatedAt:      now,
		EnvelopeFrom:   in.EnvelopeFrom,
		Read:           false,
		HasAttachments: hasAttachments,
		Recipients:     recipients,
		ToHeader:       in.Headers["To"],
	}, nil
}

// UpdateRendered overwrites rendered_body_html after CID rewriting has run,
// since the attachment ids needed to build rewrite URLs only exist after
// Save's insert.
func (s *Store) UpdateRendered(ctx context.Context, emailID, renderedHTML string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET rendered_body_html = ? WHERE id = ?`, renderedHTML, emailID)
	if err != nil {
		return errs.New(errs.KindStorage, "store.UpdateRendered", err)
	}
	return nil
}

// AttachmentIDsFor returns a map from content-id to attachment id for an
// email's attachments that have a content-id, for the CID rewriter to consume.
func (s *Store) AttachmentIDsFor(ctx context.Context, emailID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content_id FROM attachments WHERE email_id = ? AND content_id IS NOT NULL AND content_id != ''`, emailID)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "store.AttachmentIDsFor", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, cid string
		if err := rows.Scan(&id, &cid); err != nil {
			return nil, errs.New(errs.KindStorage, "store.AttachmentIDsFor.scan", err)
		}
		out[cid] = id
	}
	return out, rows.Err()
}

func upsertRecipient(ctx context.Context, tx *sql.Tx, address string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM envelope_recipients WHERE address = ?`, address).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO envelope_recipients (id, address) VALUES (?, ?)`, id, address); err != nil {
		return "", err
	}
	return id, nil
}

func dedupeTrimmedNonEmpty(addrs []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Delete removes an email and cascades to its dependents, compacting the
// store if the row existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE id = ?`, id)
	if err != nil {
		return false, errs.New(errs.KindStorage, "store.Delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.New(errs.KindStorage, "store.Delete.rowsAffected", err)
	}
	if n > 0 {
		if err := s.vacuum(ctx); err != nil {
			return true, err
		}
	}
	return n > 0, nil
}

// DeleteAll truncates every email and compacts the store.
func (s *Store) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.KindStorage, "store.DeleteAll", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM emails`); err != nil {
		return errs.New(errs.KindStorage, "store.DeleteAll.delete", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM envelope_recipients`); err != nil {
		return errs.New(errs.KindStorage, "store.DeleteAll.deleteRecipients", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.KindStorage, "store.DeleteAll.commit", err)
	}
	return s.vacuum(ctx)
}

func (s *Store) vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return errs.New(errs.KindStorage, "store.vacuum", err)
	}
	return nil
}

// MarkRead atomically flips the read flag and returns the updated record
// plus whether the flag actually transitioned false->true, since the event
// bus only publishes EmailRead on an actual transition per spec.md §4.7.
func (s *Store) MarkRead(ctx context.Context, id string, read bool) (EmailListRecord, bool, error) {
	existing, err := s.GetFull(ctx, id)
	if err != nil {
		return EmailListRecord{}, false, err
	}
	transitioned := !existing.Read && read
	if existing.Read == read {
		return existing.ToListRecord(), false, nil
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE emails SET read = ? WHERE id = ?`, read, id); err != nil {
		return EmailListRecord{}, false, errs.New(errs.KindStorage, "store.MarkRead", err)
	}
	existing.Read = read
	return existing.ToListRecord(), transitioned, nil
}
