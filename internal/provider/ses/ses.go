// Package ses implements a Provider that relays a mail.send request through
// AWS SES v2 as a raw MIME message.
package ses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	mail "github.com/go-mail/mail"

	"github.com/shineum/sgmail/internal/email"
	"github.com/shineum/sgmail/internal/provider"
)

// headerSMTPAPI carries the personalization header in the relayed message.
const headerSMTPAPI = "X-SMTPAPI"

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Sender is used when the request has no "from" field.
	Sender string
}

// SESProvider relays requests via the AWS SES v2 API.
type SESProvider struct {
	sender string
	client SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *SESProvider {
	return &SESProvider{
		sender: sender,
		client: client,
	}
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

// Send renders the request form as a raw MIME message and sends it once.
// Credentials in the form are ignored.
func (s *SESProvider) Send(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	msg := formMessage(req.Form, s.sender)

	raw, err := buildRawMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to build raw message: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.fromAddr),
		Destination: &types.Destination{
			ToAddresses:  msg.to,
			BccAddresses: msg.bcc,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		slog.Warn("SES API error", "error", err)
		return nil, fmt.Errorf("SES API request failed: %w", err)
	}

	resp := &provider.Response{StatusCode: http.StatusOK}
	if out != nil && out.MessageId != nil {
		resp.MessageID = *out.MessageId
	}
	return resp, nil
}

// relayMessage is the subset of the mail.send form that SES can carry.
type relayMessage struct {
	fromAddr string
	fromName string
	to       []string
	toNames  []string
	bcc      []string
	replyTo  string
	date     string
	subject  string
	text     string
	html     string
	headers  map[string]string
	smtpapi  string
	files    []relayFile
}

type relayFile struct {
	name    string
	content []byte
}

// formMessage reads a finalized mail.send form. Indexed fields are ordered by
// index; gaps left by dropped empty values are skipped.
func formMessage(form url.Values, fallbackSender string) relayMessage {
	msg := relayMessage{
		fromAddr: form.Get(email.FieldFrom),
		fromName: form.Get(email.FieldFromName),
		replyTo:  form.Get(email.FieldReplyTo),
		date:     form.Get(email.FieldDate),
		subject:  form.Get(email.FieldSubject),
		text:     form.Get(email.FieldText),
		html:     form.Get(email.FieldHTML),
		smtpapi:  form.Get(email.FieldSMTPAPI),
	}
	if msg.fromAddr == "" {
		msg.fromAddr = fallbackSender
	}

	toIdx := indexed(form, email.FieldTo)
	names := indexedByIndex(form, email.FieldToName)
	for _, e := range toIdx {
		msg.to = append(msg.to, e.value)
		msg.toNames = append(msg.toNames, names[e.index])
	}
	for _, e := range indexed(form, email.FieldBcc) {
		msg.bcc = append(msg.bcc, e.value)
	}

	if raw := form.Get(email.FieldHeaders); raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.headers); err != nil {
			slog.Warn("ignoring malformed headers field", "error", err)
		}
	}

	prefix := email.FieldFiles + "["
	for key := range form {
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, "]") {
			msg.files = append(msg.files, relayFile{
				name:    key[len(prefix) : len(key)-1],
				content: []byte(form.Get(key)),
			})
		}
	}
	sort.Slice(msg.files, func(i, j int) bool { return msg.files[i].name < msg.files[j].name })

	return msg
}

type indexedValue struct {
	index int
	value string
}

func indexed(form url.Values, name string) []indexedValue {
	prefix := name + "["
	var out []indexedValue
	for key := range form {
		if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, "]") {
			continue
		}
		i, err := strconv.Atoi(key[len(prefix) : len(key)-1])
		if err != nil || i < 0 {
			continue
		}
		out = append(out, indexedValue{index: i, value: form.Get(key)})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].index < out[b].index })
	return out
}

func indexedByIndex(form url.Values, name string) map[int]string {
	out := make(map[int]string)
	for _, e := range indexed(form, name) {
		out[e.index] = e.value
	}
	return out
}

// buildRawMessage renders msg as a MIME message. Bcc addresses are carried
// by the SES destination only.
func buildRawMessage(msg relayMessage) ([]byte, error) {
	m := mail.NewMessage()
	m.SetAddressHeader("From", msg.fromAddr, msg.fromName)
	if len(msg.to) > 0 {
		addrs := make([]string, 0, len(msg.to))
		for i, addr := range msg.to {
			addrs = append(addrs, m.FormatAddress(addr, msg.toNames[i]))
		}
		m.SetHeader("To", addrs...)
	}
	if msg.replyTo != "" {
		m.SetHeader("Reply-To", msg.replyTo)
	}
	if msg.date != "" {
		m.SetHeader("Date", msg.date)
	}
	m.SetHeader("Subject", msg.subject)
	if msg.smtpapi != "" {
		m.SetHeader(headerSMTPAPI, msg.smtpapi)
	}
	for k, v := range msg.headers {
		m.SetHeader(textproto.CanonicalMIMEHeaderKey(k), v)
	}

	switch {
	case msg.text != "" && msg.html != "":
		m.SetBody("text/plain", msg.text)
		m.AddAlternative("text/html", msg.html)
	case msg.html != "":
		m.SetBody("text/html", msg.html)
	default:
		m.SetBody("text/plain", msg.text)
	}

	for _, f := range msg.files {
		content := f.content
		m.Attach(f.name,
			mail.Rename(f.name),
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIME message: %w", err)
	}
	return buf.Bytes(), nil
}
