// Package mailmime decomposes a raw RFC 822/2045 message into the message
// metadata, bodies, and attachment list described in spec.md §4.4, walking
// the MIME tree recursively the way the original parser's
// collect_attachments/extract_body_recursive pair does.
package mailmime

import (
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	emmsg "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // registers non-UTF-8 charset decoders
)

// Attachment is one classified MIME leaf.
type Attachment struct {
	Filename    *string
	ContentType *string
	Data        []byte
	ContentID   *string
	Disposition *string
}

// Details is the decomposer's full output.
type Details struct {
	MessageID   *string
	Subject     *string
	Date        *time.Time
	Headers     map[string][]string
	HeaderOrder []HeaderOccurrence
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
}

// HeaderOccurrence preserves header order across distinct names.
type HeaderOccurrence struct {
	Name  string
	Value string
}

// Decompose parses raw into Details. Decomposer failures never propagate: a
// warning is logged and an all-empty record is returned, since a malformed
// message is always accepted at the SMTP layer once DATA terminates.
func Decompose(raw []byte) Details {
	entity, err := emmsg.Read(strings.NewReader(string(raw)))
	if err != nil && entity == nil {
		slog.Warn("mailmime: failed to parse message", "error", err)
		return Details{Headers: map[string][]string{}}
	}

	d := Details{Headers: map[string][]string{}}
	collectHeaders(entity, &d)
	d.MessageID = headerOptStripBrackets(entity, "Message-Id")
	d.Subject = decodedHeaderOpt(entity, "Subject")
	d.Date = parseDate(entity)

	walkParts(entity, &d)
	return d
}

func collectHeaders(e *emmsg.Entity, d *Details) {
	fields := e.Header.Fields()
	for fields.Next() {
		name := fields.Key()
		value := fields.Value()
		d.Headers[name] = append(d.Headers[name], value)
		d.HeaderOrder = append(d.HeaderOrder, HeaderOccurrence{Name: name, Value: value})
	}
}

func headerOptStripBrackets(e *emmsg.Entity, key string) *string {
	v := e.Header.Get(key)
	if v == "" {
		return nil
	}
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "<")
	v = strings.TrimSuffix(v, ">")
	return &v
}

func decodedHeaderOpt(e *emmsg.Entity, key string) *string {
	v, err := e.Header.Text(key)
	if err != nil {
		v = e.Header.Get(key)
	}
	if v == "" {
		return nil
	}
	return &v
}

func parseDate(e *emmsg.Entity) *time.Time {
	raw := e.Header.Get("Date")
	if raw == "" {
		return nil
	}
	t, err := mail.ParseDate(raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// walkParts recursively classifies every leaf as attachment, body_text, or
// body_html per spec.md §4.4's rule, keeping the first text/plain and first
// text/html leaf not classified as an attachment.
func walkParts(e *emmsg.Entity, d *Details) {
	contentType, ctParams, _ := e.Header.ContentType()
	isAttachment := classifyAttachment(e, ctParams)

	mr := e.MultipartReader()
	if mr == nil {
		if isAttachment {
			appendAttachment(e, d, contentType, ctParams)
			return
		}
		body, err := io.ReadAll(e.Body)
		if err != nil {
			return
		}
		switch contentType {
		case "text/plain":
			if d.BodyText == "" {
				d.BodyText = string(body)
			}
		case "text/html":
			if d.BodyHTML == "" {
				d.BodyHTML = string(body)
			}
		}
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("mailmime: error reading multipart part", "error", err)
			break
		}
		walkParts(part, d)
	}
}

func classifyAttachment(e *emmsg.Entity, ctParams map[string]string) bool {
	disposition, dispParams, _ := e.Header.ContentDisposition()
	disposition = strings.ToLower(disposition)

	if disposition == "attachment" {
		return true
	}
	if _, ok := dispParams["filename"]; ok {
		return true
	}
	if _, ok := ctParams["name"]; ok {
		return true
	}
	if disposition == "inline" && e.Header.Get("Content-Id") != "" {
		return true
	}
	return false
}

func appendAttachment(e *emmsg.Entity, d *Details, contentType string, ctParams map[string]string) {
	body, err := io.ReadAll(e.Body)
	if err != nil {
		return
	}

	disposition, dispParams, _ := e.Header.ContentDisposition()

	var filename *string
	if fn, ok := dispParams["filename"]; ok && fn != "" {
		filename = &fn
	} else if fn, ok := ctParams["name"]; ok && fn != "" {
		filename = &fn
	} else if desc := e.Header.Get("Content-Description"); desc != "" {
		filename = &desc
	}

	var ct *string
	if contentType != "" {
		ct = &contentType
	}

	var contentID *string
	if cid := e.Header.Get("Content-Id"); cid != "" {
		cid = strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(cid), ">"), "<")
		contentID = &cid
	}

	var disp *string
	if disposition != "" {
		disp = &disposition
	}

	d.Attachments = append(d.Attachments, Attachment{
		Filename:    filename,
		ContentType: ct,
		Data:        body,
		ContentID:   contentID,
		Disposition: disp,
	})
}
