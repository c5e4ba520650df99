package emailplatform

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// composeReply builds a complete RFC 5322 plain-text reply message.
func composeReply(from, to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", from, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parse to address %q: %w", to, err)
	}
	h.SetAddressList("To", []*mail.Address{toAddr})

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	var ph mail.InlineHeader
	ph.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := mw.CreateSingleInline(ph)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("close text part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}

	return buf.Bytes(), nil
}
