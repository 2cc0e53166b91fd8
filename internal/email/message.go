// Package email builds the form fields of a mail.send request: addressing,
// content, attachments and the serialized X-SMTPAPI personalization header.
package email

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/shineum/sgmail/internal/smtpapi"
)

// Form field names used by the mail.send API.
const (
	FieldTo       = "to"
	FieldToName   = "toname"
	FieldBcc      = "bcc"
	FieldFrom     = "from"
	FieldFromName = "fromname"
	FieldSubject  = "subject"
	FieldText     = "text"
	FieldHTML     = "html"
	FieldReplyTo  = "replyto"
	FieldDate     = "date"
	FieldHeaders  = "headers"
	FieldFiles    = "files"
	FieldSMTPAPI  = "x-smtpapi"
)

// DateLayout is the format of the default date field (RFC 1123, always GMT).
const DateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// emptyHeader is the serialization of a header that carries no data.
const emptyHeader = "{}"

// Fields is a finalized, flat field map. Every value is non-empty.
type Fields map[string]string

// Values converts the fields to url.Values for form encoding.
func (f Fields) Values() url.Values {
	v := make(url.Values, len(f))
	for k, s := range f {
		v.Set(k, s)
	}
	return v
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IndexedField returns the name of the i-th element of a list field, e.g. "to[3]".
func IndexedField(name string, i int) string {
	return fmt.Sprintf("%s[%d]", name, i)
}

// FileField returns the field name of an attachment, e.g. "files[report.pdf]".
func FileField(filename string) string {
	return FieldFiles + "[" + filename + "]"
}

// Message accumulates the fields of one outgoing email. A Message is built
// once, mutated, finalized and handed to a sender. The zero value is an empty
// message with no date; use New to get the default date. It is not safe for
// concurrent use.
type Message struct {
	header *smtpapi.Header
	body   map[string]string

	// Next free index per list field. Indices are never reused.
	toCount     int
	toNameCount int
	bccCount    int
}

// New creates a Message seeded from d. A nil d yields an empty message whose
// date is the current time.
func New(d *Description) *Message {
	if d == nil {
		d = &Description{}
	}

	m := &Message{
		header: smtpapi.New(d.SMTPAPI),
		body:   make(map[string]string),
	}

	m.AddTo(d.To...)
	m.AddToName(d.ToName...)
	m.AddBcc(d.Bcc...)

	m.body[FieldFrom] = d.From
	m.body[FieldFromName] = d.FromName
	m.body[FieldSubject] = d.Subject
	m.body[FieldText] = d.Text
	m.body[FieldHTML] = d.HTML
	m.body[FieldReplyTo] = d.ReplyTo
	m.body[FieldHeaders] = d.Headers

	m.body[FieldDate] = d.Date
	if d.Date == "" {
		m.body[FieldDate] = time.Now().UTC().Format(DateLayout)
	}

	return m
}

// Header returns the personalization header owned by the message.
func (m *Message) Header() *smtpapi.Header {
	if m.header == nil {
		m.header = &smtpapi.Header{}
	}
	return m.header
}

func (m *Message) set(field, value string) {
	if m.body == nil {
		m.body = make(map[string]string)
	}
	m.body[field] = value
}

// AddTo adds primary recipients. Each address is appended to the
// personalization header and gets the next to[N] field.
func (m *Message) AddTo(addrs ...string) {
	m.Header().AddTo(addrs...)
	m.toCount = m.addIndexed(FieldTo, m.toCount, addrs)
}

// AddToName adds display names aligned with the to[N] fields.
func (m *Message) AddToName(names ...string) {
	m.toNameCount = m.addIndexed(FieldToName, m.toNameCount, names)
}

// AddBcc adds blind-copy recipients. They do not take part in substitutions.
func (m *Message) AddBcc(addrs ...string) {
	m.bccCount = m.addIndexed(FieldBcc, m.bccCount, addrs)
}

func (m *Message) addIndexed(name string, next int, values []string) int {
	for _, v := range values {
		m.set(IndexedField(name, next), v)
		next++
	}
	return next
}

func (m *Message) SetFrom(addr string)     { m.set(FieldFrom, addr) }
func (m *Message) SetFromName(name string) { m.set(FieldFromName, name) }
func (m *Message) SetSubject(s string)     { m.set(FieldSubject, s) }
func (m *Message) SetText(text string)     { m.set(FieldText, text) }
func (m *Message) SetHTML(html string)     { m.set(FieldHTML, html) }
func (m *Message) SetReplyTo(addr string)  { m.set(FieldReplyTo, addr) }
func (m *Message) SetDate(date string)     { m.set(FieldDate, date) }

// SetHeaders sets the raw "headers" field, a JSON object of extra MIME headers.
func (m *Message) SetHeaders(headers string) { m.set(FieldHeaders, headers) }

// SetAPIHeader sets the x-smtpapi field to explicit, or to the current
// serialization of the personalization header when explicit is empty.
func (m *Message) SetAPIHeader(explicit string) error {
	if explicit != "" {
		m.set(FieldSMTPAPI, explicit)
		return nil
	}

	s, err := m.Header().JSON()
	if err != nil {
		return err
	}
	m.set(FieldSMTPAPI, s)
	return nil
}

// AttachContent stores content under files[filename], replacing any earlier
// attachment of the same name.
func (m *Message) AttachContent(filename, content string) {
	m.set(FileField(filename), content)
}

// AttachBytes stores raw bytes as text under files[filename].
func (m *Message) AttachBytes(filename string, content []byte) {
	m.AttachContent(filename, string(content))
}

// Finalize recomputes the x-smtpapi field from the personalization header and
// returns a new map holding every non-empty field. An x-smtpapi header with
// no data is dropped as well.
func (m *Message) Finalize() (Fields, error) {
	if err := m.SetAPIHeader(""); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}

	out := make(Fields, len(m.body))
	for k, v := range m.body {
		if v == "" {
			continue
		}
		if k == FieldSMTPAPI && v == emptyHeader {
			continue
		}
		out[k] = v
	}
	return out, nil
}
