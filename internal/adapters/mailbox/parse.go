package mailbox

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mikey/subscription-tracker/internal/core"
	"golang.org/x/net/html/charset"
)

const maxMultipartDepth = 8

var (
	wordDecoder = &mime.WordDecoder{CharsetReader: charset.NewReaderLabel}
	stripPolicy = newStripPolicy()
)

func newStripPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}

// ParseMessage decodes a raw RFC 5322 message. Only an unreadable header block
// is an error; undecodable body parts are left empty.
func ParseMessage(raw []byte, fallbackID string) (*core.RawEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message headers: %w", err)
	}

	e := &core.RawEmail{
		ID:       messageID(msg.Header, fallbackID, raw),
		ThreadID: strings.TrimSpace(msg.Header.Get("In-Reply-To")),
		Subject:  decodeHeader(msg.Header.Get("Subject")),
		From:     decodeHeader(msg.Header.Get("From")),
		To:       recipients(msg.Header.Get("To")),
	}
	if date, err := msg.Header.Date(); err == nil {
		e.Date = date.UTC()
	}

	var plain, rich strings.Builder
	walkPart(textproto.MIMEHeader(msg.Header), msg.Body, 0, &plain, &rich)

	e.BodyPlain = strings.TrimSpace(plain.String())
	e.BodyHTML = strings.TrimSpace(rich.String())
	if e.BodyPlain == "" && e.BodyHTML != "" {
		e.BodyPlain = HTMLToText(e.BodyHTML)
	}
	return e, nil
}

// HTMLToText strips all markup from an HTML body
func HTMLToText(body string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(body))
	return strings.Join(strings.Fields(text), " ")
}

func walkPart(header textproto.MIMEHeader, body io.Reader, depth int, plain, rich *strings.Builder) {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" || depth >= maxMultipartDepth {
			return
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err != nil {
				// io.EOF or a broken part ends the walk with what was collected
				return
			}
			walkPart(part.Header, part, depth+1, plain, rich)
		}
	}

	if isAttachment(header) {
		return
	}

	var target *strings.Builder
	switch mediaType {
	case "text/plain":
		target = plain
	case "text/html":
		target = rich
	default:
		return
	}

	text, err := decodeBody(header, body, params["charset"])
	if err != nil {
		return
	}
	if target.Len() > 0 {
		target.WriteString("\n")
	}
	target.WriteString(text)
}

func decodeBody(header textproto.MIMEHeader, body io.Reader, cs string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	}

	if cs != "" && !strings.EqualFold(cs, "utf-8") && !strings.EqualFold(cs, "us-ascii") {
		converted, err := charset.NewReaderLabel(cs, body)
		if err != nil {
			return "", err
		}
		body = converted
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func isAttachment(header textproto.MIMEHeader) bool {
	disposition, _, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	return err == nil && disposition == "attachment"
}

func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}

func recipients(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	list, err := parser.ParseList(value)
	if err != nil {
		return []string{strings.TrimSpace(value)}
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		out = append(out, strings.ToLower(addr.Address))
	}
	return out
}

// messageID prefers the Message-Id header, then the caller's id, then a content hash
func messageID(header mail.Header, fallbackID string, raw []byte) string {
	if id := strings.Trim(strings.TrimSpace(header.Get("Message-Id")), "<>"); id != "" {
		return id
	}
	if fallbackID != "" {
		return fallbackID
	}
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}
