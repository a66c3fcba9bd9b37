// Package store is the persistence gateway (C6) and read-side query layer
// (C9): a single-transaction SQLite writer plus the paginated/search read
// operations consumed by the HTTP API.
package store

import "time"

// Email is the durable record of one accepted message.
type Email struct {
	ID               string
	MessageID        *string
	Subject          *string
	Date             *time.Time
	EnvelopeFrom     string
	RawData          []byte // gzip-compressed
	Size             int64  // uncompressed
	BodyText         string
	BodyHTML         string
	RenderedBodyHTML *string
	Read             bool
	HasAttachments   bool
	CreatedAt        time.Time
}

// Header is one name/value occurrence from the message header section.
type Header struct {
	ID      string
	EmailID string
	Name    string
	Value   string
}

// Attachment is one MIME leaf classified as attachment or inline-with-CID.
type Attachment struct {
	ID          string
	EmailID     string
	Filename    *string
	ContentType *string
	Data        []byte // gzip-compressed
	Size        int64  // uncompressed
	ContentID   *string
	Disposition *string
	CreatedAt   time.Time
}

// AttachmentContent is the decompressed bytes plus metadata needed to serve
// an attachment download.
type AttachmentContent struct {
	ID          string
	Filename    *string
	ContentType *string
	Data        []byte
}

// AttachmentMeta is attachment metadata without body bytes, embedded in an
// EmailRecord.
type AttachmentMeta struct {
	ID          string     `json:"id"`
	Filename    *string    `json:"filename"`
	ContentType *string    `json:"content_type"`
	Size        int64      `json:"size"`
	ContentID   *string    `json:"content_id"`
	Disposition *string   `json:"disposition"`
	CreatedAt   time.Time `json:"created_at"`
}

// EmailListRecord is the reduced projection used in listings.
type EmailListRecord struct {
	ID             string     `json:"id"`
	Subject        *string    `json:"subject"`
	Date           *time.Time `json:"date"`
	CreatedAt      time.Time  `json:"created_at"`
	EnvelopeFrom   string     `json:"envelope_from"`
	Read           bool       `json:"read"`
	HasAttachments bool       `json:"has_attachments"`
	Recipients     []string   `json:"recipients"`
	ToHeader       []string   `json:"to_header"`
}

// EmailRecord is the full projection used for single-record reads.
type EmailRecord struct {
	ID           string              `json:"id"`
	MessageID    *string             `json:"message_id"`
	Subject      *string             `json:"subject"`
	Date         *time.Time          `json:"date"`
	Headers      map[string][]string `json:"headers"`
	CreatedAt    time.Time           `json:"created_at"`
	EnvelopeFrom string              `json:"envelope_from"`
	Size         int64               `json:"size"`
	BodyText     string              `json:"body_text"`
	BodyHTML     string              `json:"body_html"`
	Read         bool                `json:"read"`
	Recipients   []string            `json:"recipients"`
	Attachments  []AttachmentMeta    `json:"attachments"`
}

// ToListRecord projects an EmailRecord down to an EmailListRecord, used
// after a read-then-mutate (mark_read) to build the broadcast payload
// without a second query.
func (e EmailRecord) ToListRecord() EmailListRecord {
	var toHeader []string
	if v, ok := e.Headers["To"]; ok {
		toHeader = v
	}
	return EmailListRecord{
		ID:             e.ID,
		Subject:        e.Subject,
		Date:           e.Date,
		CreatedAt:      e.CreatedAt,
		EnvelopeFrom:   e.EnvelopeFrom,
		Read:           e.Read,
		HasAttachments: len(e.Attachments) > 0,
		Recipients:     e.Recipients,
		ToHeader:       toHeader,
	}
}

// ListQuery is the normalized form of ListParams.
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
}

// ListParams is the raw query-string shape.
type ListParams struct {
	Page    int    `json:"page" validate:"omitempty,min=1"`
	PerPage int    `json:"per_page" validate:"omitempty,min=1,max=200"`
	Search  string `json:"search" validate:"omitempty,max=500"`
}

// Normalize applies the defaults from spec.md §4.9 (page 1, per_page 20).
func (p ListParams) Normalize() ListQuery {
	q := ListQuery{Page: p.Page, PerPage: p.PerPage, Search: p.Search}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = 20
	}
	if q.PerPage > 200 {
		q.PerPage = 200
	}
	return q
}

// Offset returns the SQL OFFSET for this query.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// RecipientCount is one row of the per-recipient histogram.
type RecipientCount struct {
	Recipient string `json:"recipient"`
	Count     int64  `json:"count"`
}

// EmailStats is the counts() result shape.
type EmailStats struct {
	Inbox      int64            `json:"inbox"`
	Unread     int64            `json:"unread"`
	Recipients []RecipientCount `json:"recipients"`
}

// NewEmail is the shape the persistence gateway accepts from the SMTP
// pipeline: a fully decomposed message plus its envelope, ready to be
// written atomically.
type NewEmail struct {
	MessageID    *string
	Subject      *string
	Date         *time.Time
	EnvelopeFrom string
	Recipients   []string // from RCPT TO, non-empty-trimmed
	RawBody      []byte   // uncompressed
	BodyText     string
	BodyHTML     string
	Headers      map[string][]string // preserves order via HeaderOrder
	HeaderOrder  []HeaderOccurrence
	Attachments  []NewAttachment
}

// HeaderOccurrence is one (name, value) pair in header order, since a Go map
// can't preserve the original sequence across different header names.
type HeaderOccurrence struct {
	Name  string
	Value string
}

// NewAttachment is one decomposed MIME leaf awaiting an assigned ID.
type NewAttachment struct {
	Filename    *string
	ContentType *string
	Data        []byte // uncompressed
	ContentID   *string
	Disposition *string
}
