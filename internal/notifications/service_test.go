package notifications

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"certificate-portal/certificate-portal-backend/internal/certificates"
)

// MockSender is a mock implementation of Sender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, email *Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func testRecord() *certificates.Record {
	return &certificates.Record{
		ID:        "AB12CD34E",
		Name:      "Asha Rao",
		Domain:    "Data Science",
		Months:    3,
		StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
		Email:     "asha@example.com",
		Grade:     "A+",
		Status:    certificates.StatusPending,
	}
}

func testConfig() Config {
	return Config{
		FromAddress:  "certificates@example.org",
		FromName:     "Certificates Desk",
		Organization: "Example Labs",
	}
}

func writeArtifact(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// fakeSMTP accepts a single session and records what the client sent
type fakeSMTP struct {
	listener   net.Listener
	extensions []string
	done       chan struct{}

	from string
	rcpt []string
	auth string
	data string
}

func startFakeSMTP(t *testing.T, extensions ...string) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSMTP{listener: ln, extensions: extensions, done: make(chan struct{})}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTP) config(t *testing.T) SMTPConfig {
	host, port, err := net.SplitHostPort(s.listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return SMTPConfig{Host: host, Port: p, Timeout: 5 * time.Second}
}

func (s *fakeSMTP) serve() {
	defer close(s.done)
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			lines := append([]string{"localhost"}, s.extensions...)
			for i, l := range lines {
				sep := "-"
				if i == len(lines)-1 {
					sep = " "
				}
				_ = tp.PrintfLine("250%s%s", sep, l)
			}
		case strings.HasPrefix(cmd, "AUTH PLAIN"):
			s.auth = strings.TrimSpace(line[len("AUTH PLAIN"):])
			_ = tp.PrintfLine("235 2.7.0 Authentication successful")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.from = strings.Trim(line[len("MAIL FROM:"):], "<>")
			_ = tp.PrintfLine("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.rcpt = append(s.rcpt, strings.Trim(line[len("RCPT TO:"):], "<>"))
			_ = tp.PrintfLine("250 OK")
		case cmd == "DATA":
			_ = tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.data = string(data)
			_ = tp.PrintfLine("250 OK queued")
		case cmd == "QUIT":
			_ = tp.PrintfLine("221 Bye")
			return
		default:
			_ = tp.PrintfLine("502 Command not implemented")
		}
	}
}

type parsedMessage struct {
	header      mail.Header
	text        string
	html        string
	attachment  []byte
	filename    string
	contentType string
}

func parseMessage(t *testing.T, raw string) parsedMessage {
	t.Helper()
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	out := parsedMessage{header: msg.Header}
	mixed := multipart.NewReader(msg.Body, params["boundary"])

	alt, err := mixed.NextPart()
	require.NoError(t, err)
	_, altParams, err := mime.ParseMediaType(alt.Header.Get("Content-Type"))
	require.NoError(t, err)
	bodies := multipart.NewReader(alt, altParams["boundary"])
	for {
		part, err := bodies.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(part)
		require.NoError(t, err)
		if strings.HasPrefix(part.Header.Get("Content-Type"), "text/html") {
			out.html = string(content)
		} else {
			out.text = string(content)
		}
	}

	att, err := mixed.NextPart()
	require.NoError(t, err)
	out.filename = att.FileName()
	out.contentType, _, _ = mime.ParseMediaType(att.Header.Get("Content-Type"))
	out.attachment, err = io.ReadAll(base64.NewDecoder(base64.StdEncoding, att))
	require.NoError(t, err)

	_, err = mixed.NextPart()
	assert.ErrorIs(t, err, io.EOF)
	return out
}

func TestMailer_Compose(t *testing.T) {
	mailer := NewMailer(&MockSender{}, testConfig(), zap.NewNop())
	path := writeArtifact(t, "certificate.pdf", []byte("%PDF-1.7 body"))

	email, err := mailer.Compose(testRecord(), path)
	require.NoError(t, err)

	assert.Equal(t, `"Certificates Desk" <certificates@example.org>`, email.From)
	assert.Equal(t, []string{"asha@example.com"}, email.To)
	assert.Equal(t, "Completion Certificate - Asha Rao", email.Subject)
	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "Certificate_Asha Rao.pdf", email.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", email.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.7 body"), email.Attachments[0].Content)

	assert.Contains(t, email.HTML, "Data Science")
	assert.Contains(t, email.HTML, "AB12CD34E")
	assert.Contains(t, email.HTML, "01 January 2025 to 31 March 2025")
	assert.Contains(t, email.HTML, "<strong>Grade:</strong> A+")
	assert.Contains(t, email.Text, "Example Labs Team")
}

func TestMailer_ComposeDocxFallback(t *testing.T) {
	mailer := NewMailer(&MockSender{}, testConfig(), zap.NewNop())
	path := writeArtifact(t, "certificate.docx", []byte("PK docx"))

	email, err := mailer.Compose(testRecord(), path)
	require.NoError(t, err)

	assert.Equal(t, "Certificate_Asha Rao.docx", email.Attachments[0].Filename)
	assert.Equal(t, attachmentTypes[".docx"], email.Attachments[0].ContentType)
}

func TestMailer_ComposeMissingArtifact(t *testing.T) {
	mailer := NewMailer(&MockSender{}, testConfig(), zap.NewNop())

	_, err := mailer.Compose(testRecord(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorContains(t, err, "failed to read attachment")
}

func TestMailer_Notify(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(e *Email) bool {
		return e.To[0] == "asha@example.com" && len(e.Attachments) == 1
	})).Return(nil).Once()

	mailer := NewMailer(sender, testConfig(), zap.NewNop())
	err := mailer.Notify(context.Background(), testRecord(), writeArtifact(t, "c.pdf", []byte("pdf")))

	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestMailer_NotifySenderError(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("relay down")).Once()

	mailer := NewMailer(sender, testConfig(), zap.NewNop())
	err := mailer.Notify(context.Background(), testRecord(), writeArtifact(t, "c.pdf", []byte("pdf")))

	assert.EqualError(t, err, "relay down")
	sender.AssertExpectations(t)
}

func TestBodyRenderer_SanitizesInput(t *testing.T) {
	html, text, err := NewBodyRenderer().Render("subject", BodyData{
		Name:          `<script>alert("x")</script>Mallory`,
		Organization:  "Example Labs",
		Domain:        "Security",
		Months:        1,
		Grade:         "B",
		CertificateID: "ZZZZZZZZZ",
	})
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "ZZZZZZZZZ")
	assert.Contains(t, text, "Mallory")
}

func TestSMTPSender_Send(t *testing.T) {
	server := startFakeSMTP(t, "AUTH PLAIN")
	config := server.config(t)
	config.Username = "mailer"
	config.Password = "secret"

	sender, err := NewSMTPSender(config, zap.NewNop())
	require.NoError(t, err)

	mailer := NewMailer(sender, testConfig(), zap.NewNop())
	content := []byte(strings.Repeat("certificate-bytes ", 20))
	err = mailer.Notify(context.Background(), testRecord(), writeArtifact(t, "c.pdf", content))
	require.NoError(t, err)
	<-server.done

	assert.Equal(t, "certificates@example.org", server.from)
	assert.Equal(t, []string{"asha@example.com"}, server.rcpt)

	decoded, err := base64.StdEncoding.DecodeString(server.auth)
	require.NoError(t, err)
	assert.Equal(t, "\x00mailer\x00secret", string(decoded))

	msg := parseMessage(t, server.data)
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Completion Certificate - Asha Rao", subject)
	assert.Equal(t, "asha@example.com", msg.header.Get("To"))
	assert.Equal(t, "Certificate_Asha Rao.pdf", msg.filename)
	assert.Equal(t, "application/pdf", msg.contentType)
	assert.Equal(t, content, msg.attachment)
	assert.Contains(t, msg.html, "Data Science")
	assert.Contains(t, msg.text, "AB12CD34E")
}

func TestSMTPSender_RequireTLS(t *testing.T) {
	server := startFakeSMTP(t)
	config := server.config(t)
	config.RequireTLS = true

	sender, err := NewSMTPSender(config, zap.NewNop())
	require.NoError(t, err)

	err = sender.Send(context.Background(), &Email{
		From:    "certificates@example.org",
		To:      []string{"asha@example.com"},
		Subject: "s",
		Text:    "t",
	})
	assert.ErrorIs(t, err, ErrStartTLSUnavailable)
	<-server.done
	assert.Empty(t, server.data)
}

func TestSMTPSender_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	sender, err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)

	err = sender.Send(context.Background(), &Email{From: "a@b.c", To: []string{"d@e.f"}, Text: "t"})
	assert.ErrorContains(t, err, "failed to connect to smtp relay")
}

func TestNewSMTPSender_Defaults(t *testing.T) {
	sender, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.org"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.org:587", sender.config.Addr())
	assert.Equal(t, defaultSMTPTimeout, sender.config.Timeout)

	_, err = NewSMTPSender(SMTPConfig{}, nil)
	assert.Error(t, err)
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	return &sesv2.SendEmailOutput{}, f.err
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	mailer := NewMailer(NewSESSender(client), testConfig(), zap.NewNop())

	err := mailer.Notify(context.Background(), testRecord(), writeArtifact(t, "c.docx", []byte("PK")))
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, `"Certificates Desk" <certificates@example.org>`, *client.input.FromEmailAddress)
	assert.Equal(t, []string{"asha@example.com"}, client.input.Destination.ToAddresses)

	msg := parseMessage(t, string(client.input.Content.Raw.Data))
	assert.Equal(t, "Certificate_Asha Rao.docx", msg.filename)
	assert.Equal(t, []byte("PK"), msg.attachment)
}

func TestSESSender_Error(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	sender := NewSESSender(client)

	err := sender.Send(context.Background(), &Email{From: "a@b.c", To: []string{"d@e.f"}, Text: "t"})
	assert.ErrorContains(t, err, "ses: failed to send email: throttled")
}

func TestBuildMessage_NoRecipients(t *testing.T) {
	_, err := buildMessage(&Email{From: "a@b.c"}, time.Now())
	assert.Error(t, err)
}

func TestBuildMessage_RejectsHeaderLineBreaks(t *testing.T) {
	_, err := buildMessage(&Email{
		From: "a@b.c",
		To:   []string{"x@example.com\r\nX-Injected: yes"},
		Text: "t",
	}, time.Now())
	assert.ErrorIs(t, err, ErrHeaderInjection)

	_, err = buildMessage(&Email{From: "Desk\n<a@b.c>", To: []string{"d@e.f"}, Text: "t"}, time.Now())
	assert.ErrorIs(t, err, ErrHeaderInjection)

	// subjects are Q-encoded, so a newline there never reaches the header block raw
	msg, err := buildMessage(&Email{From: "a@b.c", To: []string{"d@e.f"}, Subject: "Hi\r\nX-Injected: yes", Text: "t"}, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, string(msg), "\r\nX-Injected: yes")
}

func TestSESSender_RejectsInjectedRecipient(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client)

	err := sender.Send(context.Background(), &Email{From: "a@b.c", To: []string{"x@example.com\r\nX-Injected: yes"}, Text: "t"})
	assert.ErrorIs(t, err, ErrHeaderInjection)
	assert.Nil(t, client.input)
}

func TestNewSender(t *testing.T) {
	ctx := context.Background()

	sender, err := NewSender(ctx, Config{SMTP: SMTPConfig{Host: "smtp.example.org"}}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, sender)

	sender, err = NewSender(ctx, Config{Transport: TransportResend, Resend: ResendConfig{APIKey: "re_test"}}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &ResendSender{}, sender)

	_, err = NewSender(ctx, Config{Transport: TransportResend}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewSender(ctx, Config{Transport: "pigeon"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown mail transport")
}
