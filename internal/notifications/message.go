package notifications

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

const base64LineLength = 76

// buildMessage renders email as an RFC 5322 message: a multipart/mixed body
// holding a text/html alternative and the attachments
func buildMessage(email *Email, date time.Time) ([]byte, error) {
	if len(email.To) == 0 {
		return nil, fmt.Errorf("no recipients specified")
	}

	var body bytes.Buffer
	mixed := multipart.NewWriter(&body)

	if err := writeAlternative(mixed, email); err != nil {
		return nil, err
	}

	for _, a := range email.Attachments {
		header := textproto.MIMEHeader{}
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": a.Filename}))
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))

		part, err := mixed.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write(wrapBase64(a.Content)); err != nil {
			return nil, fmt.Errorf("failed to write attachment: %w", err)
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}

	headers := [][2]string{
		{"From", email.From},
		{"To", strings.Join(email.To, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", email.Subject)},
		{"Date", date.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `multipart/mixed; boundary="` + mixed.Boundary() + `"`},
	}
	var msg bytes.Buffer
	for _, h := range headers {
		if err := writeHeader(&msg, h[0], h[1]); err != nil {
			return nil, err
		}
	}
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

func writeAlternative(mixed *multipart.Writer, email *Email) error {
	var altBody bytes.Buffer
	alt := multipart.NewWriter(&altBody)

	bodies := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", email.Text},
		{"text/html; charset=utf-8", email.HTML},
	}
	for _, b := range bodies {
		if b.content == "" {
			continue
		}
		part, err := alt.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {b.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return fmt.Errorf("failed to create body part: %w", err)
		}
		qp := quotedprintable.NewWriter(part)
		if _, err := qp.Write([]byte(b.content)); err != nil {
			return fmt.Errorf("failed to write body: %w", err)
		}
		if err := qp.Close(); err != nil {
			return fmt.Errorf("failed to write body: %w", err)
		}
	}
	if err := alt.Close(); err != nil {
		return fmt.Errorf("failed to close body: %w", err)
	}

	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`multipart/alternative; boundary="` + alt.Boundary() + `"`},
	})
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	_, err = part.Write(altBody.Bytes())
	return err
}

// ErrHeaderInjection is returned when a header value would start a new line
var ErrHeaderInjection = errors.New("header value contains a line break")

func writeHeader(buf *bytes.Buffer, key, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: %s", ErrHeaderInjection, key)
	}
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
	return nil
}

// wrapBase64 encodes data in lines of 76 characters
func wrapBase64(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	var out bytes.Buffer
	for len(encoded) > base64LineLength {
		out.WriteString(encoded[:base64LineLength])
		out.WriteString("\r\n")
		encoded = encoded[base64LineLength:]
	}
	out.WriteString(encoded)
	out.WriteString("\r\n")
	return out.Bytes()
}
