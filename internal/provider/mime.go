package provider

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
)

const mimeLineLength = 76

// buildMIME renders message as an RFC 5322 document with a multipart/mixed body.
// Bcc recipients are omitted from the headers.
func buildMIME(message domain.Message, attachments []decodedAttachment) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", message.From)
	writeHeader(&buf, "To", strings.Join(message.To, ", "))
	if len(message.CC) > 0 {
		writeHeader(&buf, "Cc", strings.Join(message.CC, ", "))
	}
	if message.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", message.ReplyTo)
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", message.Subject))
	writeHeader(&buf, "Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader(&buf, "MIME-Version", "1.0")

	names := make([]string, 0, len(message.Headers))
	for name := range message.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeHeader(&buf, textproto.CanonicalMIMEHeaderKey(name), message.Headers[name])
	}

	mixed := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mixed.Boundary()))
	buf.WriteString("\r\n")

	if err := writeAlternative(mixed, message); err != nil {
		return nil, err
	}

	for _, a := range attachments {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", mime.FormatMediaType(a.ContentType, map[string]string{"name": a.Filename}))
		header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
		header.Set("Content-Transfer-Encoding", "base64")

		part, err := mixed.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(wrapBase64(a.Content)); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAlternative(mixed *multipart.Writer, message domain.Message) error {
	var body bytes.Buffer
	alt := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{contentType: "text/plain; charset=utf-8", content: message.Text},
		{contentType: "text/html; charset=utf-8", content: message.HTML},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", p.contentType)
		header.Set("Content-Transfer-Encoding", "base64")
		w, err := alt.CreatePart(header)
		if err != nil {
			return err
		}
		if _, err := w.Write(wrapBase64([]byte(p.content))); err != nil {
			return err
		}
	}
	if err := alt.Close(); err != nil {
		return err
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()))
	w, err := mixed.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = w.Write(body.Bytes())
	return err
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(strings.NewReplacer("\r", "", "\n", "").Replace(value))
	buf.WriteString("\r\n")
}

func wrapBase64(content []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(content)
	var out bytes.Buffer
	for len(encoded) > mimeLineLength {
		out.WriteString(encoded[:mimeLineLength])
		out.WriteString("\r\n")
		encoded = encoded[mimeLineLength:]
	}
	out.WriteString(encoded)
	out.WriteString("\r\n")
	return out.Bytes()
}
