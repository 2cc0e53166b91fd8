package ses

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/shineum/sgmail/internal/provider"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func request(form url.Values) *provider.Request {
	return &provider.Request{Method: "POST", URL: "https://example.invalid", Form: form}
}

func TestName(t *testing.T) {
	t.Parallel()
	p := NewWithClient("sender@example.com", &mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestSend_TextEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("fallback@example.com", mock)

	resp, err := p.Send(context.Background(), request(url.Values{
		"from":      {"sender@example.com"},
		"fromname":  {"Sender Name"},
		"to[0]":     {"a@example.com"},
		"to[1]":     {"b@example.com"},
		"toname[1]": {"Bob"},
		"bcc[0]":    {"hidden@example.com"},
		"subject":   {"Test Subject"},
		"text":      {"Hello, World!"},
		"date":      {"Mon, 01 Jan 2024 00:00:00 GMT"},
		"x-smtpapi": {`{"category":["c"]}`},
		"api_user":  {"user"},
		"api_key":   {"secret"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.MessageID != "test-message-id" {
		t.Errorf("MessageID: got %q, want %q", resp.MessageID, "test-message-id")
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if got := *input.FromEmailAddress; got != "sender@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "sender@example.com")
	}
	if got := input.Destination.ToAddresses; len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Errorf("ToAddresses: got %v", got)
	}
	if got := input.Destination.BccAddresses; len(got) != 1 || got[0] != "hidden@example.com" {
		t.Errorf("BccAddresses: got %v", got)
	}

	raw := string(input.Content.Raw.Data)
	for _, want := range []string{
		`From: "Sender Name" <sender@example.com>`,
		"To: a@example.com",
		`"Bob" <b@example.com>`,
		"Subject: Test Subject\r\n",
		"Date: Mon, 01 Jan 2024 00:00:00 GMT\r\n",
		`X-SMTPAPI: {"category":["c"]}`,
		"Content-Type: text/plain; charset=UTF-8",
		"Hello, World!",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("raw message missing %q", want)
		}
	}
	for _, unwanted := range []string{"secret", "hidden@example.com", "text/html"} {
		if strings.Contains(raw, unwanted) {
			t.Errorf("raw message should not contain %q", unwanted)
		}
	}
}

func TestSend_FallbackSender(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("fallback@example.com", mock)

	if _, err := p.Send(context.Background(), request(url.Values{"to[0]": {"a@example.com"}, "subject": {"s"}})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := *mock.lastInput.FromEmailAddress; got != "fallback@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "fallback@example.com")
	}
	if !strings.Contains(string(mock.lastInput.Content.Raw.Data), "From: fallback@example.com\r\n") {
		t.Error("raw message should use the fallback sender")
	}
}

func TestSend_TextAndHTMLAlternative(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("s@example.com", mock)

	if _, err := p.Send(context.Background(), request(url.Values{
		"to[0]": {"a@example.com"},
		"text":  {"plain body"},
		"html":  {"<h1>html body</h1>"},
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := string(mock.lastInput.Content.Raw.Data)
	for _, want := range []string{"multipart/alternative", "plain body", "<h1>html body</h1>", "text/html; charset=UTF-8"} {
		if !strings.Contains(raw, want) {
			t.Errorf("raw message missing %q", want)
		}
	}
}

func TestSend_AttachmentsAndHeaders(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("s@example.com", mock)

	if _, err := p.Send(context.Background(), request(url.Values{
		"to[0]":             {"a@example.com"},
		"text":              {"see attached"},
		"headers":           {`{"x-campaign":"spring"}`},
		"files[report.pdf]": {"pdf-content"},
		"files[notes.txt]":  {"hello"},
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := string(mock.lastInput.Content.Raw.Data)
	for _, want := range []string{
		"X-Campaign: spring\r\n",
		"multipart/mixed",
		"Content-Type: application/pdf",
		`attachment; filename="report.pdf"`,
		`attachment; filename="notes.txt"`,
		"cGRmLWNvbnRlbnQ=",
		"aGVsbG8=",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("raw message missing %q", want)
		}
	}
	if strings.Index(raw, "notes.txt") > strings.Index(raw, "report.pdf") {
		t.Error("attachments should be written in filename order")
	}
}

func TestSend_MalformedHeadersIgnored(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("s@example.com", mock)

	if _, err := p.Send(context.Background(), request(url.Values{
		"to[0]":   {"a@example.com"},
		"headers": {"not json"},
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(mock.lastInput.Content.Raw.Data), "not json") {
		t.Error("malformed headers should be dropped")
	}
}

func TestSend_ErrorNotRetried(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("throttled")
	mock := &mockSESClient{
		sendFn: func(context.Context, *sesv2.SendEmailInput, ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, sentinel
		},
	}
	p := NewWithClient("s@example.com", mock)

	_, err := p.Send(context.Background(), request(url.Values{"to[0]": {"a@example.com"}}))
	if !errors.Is(err, sentinel) {
		t.Fatalf("got %v, want wrapped sentinel", err)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
}

func TestFormMessage_IndexOrdering(t *testing.T) {
	t.Parallel()

	msg := formMessage(url.Values{
		"to[10]":     {"k@example.com"},
		"to[2]":      {"c@example.com"},
		"to[0]":      {"a@example.com"},
		"toname[10]": {"Kay"},
		"to[x]":      {"ignored@example.com"},
	}, "")

	want := []string{"a@example.com", "c@example.com", "k@example.com"}
	if strings.Join(msg.to, ",") != strings.Join(want, ",") {
		t.Errorf("to: got %v, want %v", msg.to, want)
	}
	if msg.toNames[2] != "Kay" || msg.toNames[0] != "" {
		t.Errorf("toNames: got %v", msg.toNames)
	}
}

func TestSend_LargeAttachmentLineLength(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("s@example.com", mock)

	if _, err := p.Send(context.Background(), request(url.Values{
		"to[0]":           {"a@example.com"},
		"files[blob.xyz]": {strings.Repeat("a", 1000)},
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := string(mock.lastInput.Content.Raw.Data)
	if !strings.Contains(raw, "application/octet-stream") {
		t.Error("unknown extensions should default to application/octet-stream")
	}
	for _, line := range strings.Split(raw, "\r\n") {
		if len(line) > 76 && strings.HasPrefix(line, "YWFh") {
			t.Errorf("base64 line length %d exceeds 76", len(line))
		}
	}
}
