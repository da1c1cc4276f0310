package provider

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name       string
	configured bool
	err        error
	sent       []*Message
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return f.configured }
func (f *fakeProvider) Send(_ context.Context, msg *Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	id := "msg-1"
	return &sesv2.SendEmailOutput{MessageId: &id}, nil
}

type fakeResendEmails struct {
	params *resend.SendEmailRequest
	err    error
}

func (f *fakeResendEmails) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "re-1"}, nil
}

func testRequest() *Message {
	return &Message{
		From:    "alerts@garuda.example",
		To:      []string{"u1@example.com"},
		Subject: "Alpha: North Field via Flood alert",
		Text:    "water level rising",
	}
}

func TestChain_PreferredUsedFirst(t *testing.T) {
	preferred := &fakeProvider{name: "ses", configured: true}
	backup := &fakeProvider{name: "smtp", configured: true}
	c := NewChain(preferred, backup)

	require.NoError(t, c.Send(context.Background(), testRequest()))
	assert.Len(t, preferred.sent, 1)
	assert.Empty(t, backup.sent)
}

func TestChain_FallsThroughOnFailure(t *testing.T) {
	preferred := &fakeProvider{name: "ses", configured: true, err: errors.New("throttled")}
	backup := &fakeProvider{name: "smtp", configured: true}
	c := NewChain(preferred, backup)

	require.NoError(t, c.Send(context.Background(), testRequest()))
	assert.Len(t, preferred.sent, 1)
	assert.Len(t, backup.sent, 1)
}

func TestChain_AllFailWrapsEveryError(t *testing.T) {
	throttled := errors.New("throttled")
	refused := errors.New("refused")
	c := NewChain(
		&fakeProvider{name: "ses", configured: true, err: throttled},
		&fakeProvider{name: "smtp", configured: true, err: refused},
	)

	err := c.Send(context.Background(), testRequest())
	assert.ErrorIs(t, err, throttled)
	assert.ErrorIs(t, err, refused)
	assert.True(t, strings.Index(err.Error(), "ses:") < strings.Index(err.Error(), "smtp:"), "preferred error first: %v", err)
}

func TestChain_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	preferred := &fakeProvider{name: "ses", configured: true, err: context.Canceled}
	backup := &fakeProvider{name: "smtp", configured: true}

	err := NewChain(preferred, backup).Send(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, backup.sent)
}

func TestChain_SkipsUnconfigured(t *testing.T) {
	unconfigured := &fakeProvider{name: "resend"}
	smtp := &fakeProvider{name: "smtp", configured: true}
	c := NewChain(unconfigured, smtp)

	assert.True(t, c.Configured())
	assert.Equal(t, []string{"smtp"}, c.Names())
	require.NoError(t, c.Send(context.Background(), testRequest()))
	assert.Empty(t, unconfigured.sent)
	assert.Len(t, smtp.sent, 1)
}

func TestChain_NoneConfigured(t *testing.T) {
	c := NewChain(&fakeProvider{name: "resend"})

	assert.False(t, c.Configured())
	assert.ErrorIs(t, c.Send(context.Background(), testRequest()), ErrNoProvider)
}

func TestChain_AddReplacesSameName(t *testing.T) {
	old := &fakeProvider{name: "smtp", configured: true}
	replacement := &fakeProvider{name: "smtp", configured: true}
	c := NewChain(&fakeProvider{name: "ses", configured: true}, old)
	c.Add(replacement)

	assert.Equal(t, []string{"ses", "smtp"}, c.Names())
}

func TestSESProvider_Send(t *testing.T) {
	client := &fakeSES{}
	p := NewSESProviderWithClient(client, "us-east-1")
	require.True(t, p.IsConfigured())

	req := testRequest()
	req.HTML = "<p>water level rising</p>"
	require.NoError(t, p.Send(context.Background(), req))

	require.NotNil(t, client.input)
	assert.Equal(t, req.From, *client.input.FromEmailAddress)
	assert.Equal(t, req.To, client.input.Destination.ToAddresses)
	assert.Equal(t, req.Subject, *client.input.Content.Simple.Subject.Data)
	assert.Equal(t, req.Text, *client.input.Content.Simple.Body.Text.Data)
	assert.Equal(t, req.HTML, *client.input.Content.Simple.Body.Html.Data)
}

func TestSESProvider_Errors(t *testing.T) {
	unconfigured := &SESProvider{}
	assert.False(t, unconfigured.IsConfigured())
	assert.Error(t, unconfigured.Send(context.Background(), testRequest()))

	p := NewSESProviderWithClient(&fakeSES{err: errors.New("denied")}, "us-east-1")
	assert.ErrorContains(t, p.Send(context.Background(), testRequest()), "denied")

	req := testRequest()
	req.To = nil
	assert.Error(t, p.Send(context.Background(), req))
}

func TestResendProvider_Unconfigured(t *testing.T) {
	p := NewResendProvider("")
	assert.False(t, p.IsConfigured())
	assert.Error(t, p.Send(context.Background(), testRequest()))
}

func TestResendProvider_Send(t *testing.T) {
	emails := &fakeResendEmails{}
	p := &ResendProvider{emails: emails}
	require.True(t, p.IsConfigured())

	req := testRequest()
	req.HTML = "<p>water level rising</p>"
	require.NoError(t, p.Send(context.Background(), req))

	require.NotNil(t, emails.params)
	assert.Equal(t, req.From, emails.params.From)
	assert.Equal(t, req.To, emails.params.To)
	assert.Equal(t, req.Subject, emails.params.Subject)
	assert.Equal(t, req.Text, emails.params.Text)
	assert.Equal(t, req.HTML, emails.params.Html)

	emails.err = errors.New("rate limited")
	assert.ErrorContains(t, p.Send(context.Background(), req), "resend: rate limited")

	req.To = nil
	assert.Error(t, p.Send(context.Background(), req))
}

func TestSMTPProvider_Validation(t *testing.T) {
	assert.False(t, NewSMTPProvider(SMTPConfig{}).IsConfigured())

	p := NewSMTPProvider(SMTPConfig{Host: "localhost", Port: "abc"})
	assert.True(t, p.IsConfigured())
	assert.ErrorContains(t, p.Send(context.Background(), testRequest()), "invalid SMTP port")

	req := testRequest()
	req.To = nil
	assert.Error(t, p.Send(context.Background(), req))
}

func TestSMTPProvider_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	p := NewSMTPProvider(SMTPConfig{Host: host, Port: port})
	assert.Error(t, p.Send(context.Background(), testRequest()))
}

func TestBuildEmailMessage(t *testing.T) {
	msg := string(buildEmailMessage("from@example.com", []string{"a@example.com", "b@example.com"}, "Alert", "line one\nline two"))

	assert.Contains(t, msg, "From: from@example.com\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: Alert\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two"))
}
