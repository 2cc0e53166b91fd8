// Package parser imports RFC 5322 email messages (with MIME multipart support)
// as message descriptions.
package parser

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"

	"github.com/shineum/sgmail/internal/email"
	"github.com/shineum/sgmail/internal/smtpapi"
)

// headerSMTPAPI is the header that carries a personalization header in a raw message.
const headerSMTPAPI = "X-Smtpapi"

// Attachment is a file found in a parsed message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Parsed is the result of importing a raw message.
type Parsed struct {
	Description email.Description
	Attachments []Attachment
}

// Message builds a Message from the parsed description and attaches every file.
func (p *Parsed) Message() *email.Message {
	msg := email.New(&p.Description)
	for _, att := range p.Attachments {
		msg.AttachBytes(att.Filename, att.Content)
	}
	return msg
}

// Parse parses a raw RFC 5322 email message. Cc recipients are added after
// the To recipients since the mail.send form has no cc field. An X-SMTPAPI
// header, when present and valid JSON, seeds the personalization header.
func Parse(raw []byte) (*Parsed, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &Parsed{}
	d := &result.Description

	d.From, d.FromName = parseAddress(msg.Header.Get("From"))
	d.ReplyTo, _ = parseAddress(msg.Header.Get("Reply-To"))
	d.Subject = decodeHeader(msg.Header.Get("Subject"))
	d.Date = msg.Header.Get("Date")

	to, names := parseAddressList(msg.Header.Get("To"))
	cc, ccNames := parseAddressList(msg.Header.Get("Cc"))
	d.To = append(to, cc...)
	allNames := append(names, ccNames...)
	for _, n := range allNames {
		if n != "" {
			d.ToName = allNames
			break
		}
	}
	d.Bcc, _ = parseAddressList(msg.Header.Get("Bcc"))

	if v := msg.Header.Get(headerSMTPAPI); v != "" {
		var hdr smtpapi.Description
		if err := json.Unmarshal([]byte(v), &hdr); err != nil {
			slog.Warn("ignoring malformed X-SMTPAPI header", "error", err)
		} else {
			d.SMTPAPI = &hdr
		}
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// If content type is unparseable, treat as plain text
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read message body: %w", readErr)
		}
		d.Text = string(body)
		return result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := parseMultipart(msg.Body, boundary, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	switch mediaType {
	case "text/html":
		d.HTML = string(body)
	case "text/plain":
		d.Text = string(body)
	default:
		slog.Warn("unrecognized top-level content type",
			"content_type", mediaType,
		)
		d.Text = string(body)
	}

	return result, nil
}

// parseMultipart processes a multipart MIME body, extracting text/plain,
// text/html parts and attachments.
func parseMultipart(body io.Reader, boundary string, result *Parsed) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		isAttachment := strings.HasPrefix(part.Header.Get("Content-Disposition"), "attachment")

		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, nestedBoundary, result); err != nil {
				slog.Warn("failed to parse nested multipart", "error", err)
			}
			continue
		}

		content, err := readPartContent(part)
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		d := &result.Description
		switch {
		case isAttachment:
			result.addAttachment(part, params, mediaType, content)
		case mediaType == "text/plain":
			if d.Text == "" {
				d.Text = string(content)
			}
		case mediaType == "text/html":
			if d.HTML == "" {
				d.HTML = string(content)
			}
		case part.FileName() != "" || params["name"] != "":
			result.addAttachment(part, params, mediaType, content)
		default:
			slog.Warn("unrecognized MIME part, skipping",
				"content_type", mediaType,
			)
		}
	}

	return nil
}

func (p *Parsed) addAttachment(part *multipart.Part, params map[string]string, mediaType string, content []byte) {
	p.Attachments = append(p.Attachments, Attachment{
		Filename:    extractFilename(part, params, mediaType),
		ContentType: mediaType,
		Content:     content,
	})
}

// readPartContent reads the full content of a MIME part, decoding base64.
// Quoted-printable is decoded by multipart.Reader itself.
func readPartContent(part *multipart.Part) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Transfer-Encoding")))

	raw, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}

	if encoding != "base64" {
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// unpadded input
		decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
	}
	return decoded, nil
}

// extractFilename returns the part's filename from Content-Disposition or the
// Content-Type name parameter, falling back to "attachment.<subtype>" since
// attachment fields are keyed by filename.
func extractFilename(part *multipart.Part, params map[string]string, mediaType string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	if name := params["name"]; name != "" {
		return name
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "attachment." + sub
	}
	return "attachment"
}

// parseAddress splits a single address header into address and display name.
func parseAddress(raw string) (addr, name string) {
	if raw == "" {
		return "", ""
	}
	a, err := mail.ParseAddress(raw)
	if err != nil {
		return strings.TrimSpace(raw), ""
	}
	return a.Address, a.Name
}

// parseAddressList splits an address list header into addresses and the
// display names aligned with them.
func parseAddressList(raw string) (addrs, names []string) {
	if raw == "" {
		return nil, nil
	}

	list, err := mail.ParseAddressList(raw)
	if err != nil {
		// Fall back to simple comma split if RFC 5322 parsing fails
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				addrs = append(addrs, trimmed)
				names = append(names, "")
			}
		}
		return addrs, names
	}

	for _, a := range list {
		addrs = append(addrs, a.Address)
		names = append(names, a.Name)
	}
	return addrs, names
}

func decodeHeader(v string) string {
	decoded, err := new(mime.WordDecoder).DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}
