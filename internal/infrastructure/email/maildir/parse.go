package maildir

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

// Message is a parsed RFC 5322 message with decoded headers and text body.
type Message struct {
	MessageID string
	ThreadKey string
	From      string
	To        string
	Subject   string
	Body      string
	Date      time.Time
	Charset   string
}

func (m Message) Inbound(id string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:        id,
		ThreadKey: m.ThreadKey,
		From:      m.From,
		To:        m.To,
		Subject:   m.Subject,
		Body:      m.Body,
		Date:      m.Date,
	}
}

var headerDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// Parse decodes raw into a Message. maxBodySize <= 0 keeps the whole body.
func Parse(raw []byte, maxBodySize int) (Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	out := Message{
		MessageID: cleanMessageID(msg.Header.Get("Message-Id")),
		From:      decodeAddressList(msg.Header.Get("From")),
		To:        decodeAddressList(msg.Header.Get("To")),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
	}
	out.ThreadKey = threadKey(msg.Header, out.MessageID)
	if date, err := msg.Header.Date(); err == nil {
		out.Date = date.UTC()
	}

	body, charset, err := readBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return Message{}, err
	}
	if maxBodySize > 0 && len(body) > maxBodySize {
		body = body[:maxBodySize]
	}
	out.Body = strings.TrimSpace(body)
	out.Charset = charset
	return out, nil
}

// threadKey prefers the conversation root from References, then In-Reply-To.
func threadKey(header mail.Header, messageID string) string {
	if refs := strings.Fields(header.Get("References")); len(refs) > 0 {
		if id := cleanMessageID(refs[0]); id != "" {
			return id
		}
	}
	if id := cleanMessageID(header.Get("In-Reply-To")); id != "" {
		return id
	}
	return messageID
}

func readBody(contentType, transferEncoding string, body io.Reader) (string, string, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		raw, _ := io.ReadAll(body)
		return string(raw), "", nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return readMultipart(params["boundary"], body)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}
	raw = decodeTransferEncoding(raw, strings.ToLower(strings.TrimSpace(transferEncoding)))
	charset := strings.ToLower(params["charset"])
	text, err := decodeCharset(raw, charset)
	if err != nil {
		text = string(raw)
	}
	return text, charset, nil
}

// readMultipart returns the first text/plain part, falling back to the first text part.
func readMultipart(boundary string, body io.Reader) (string, string, error) {
	if boundary == "" {
		return "", "", fmt.Errorf("multipart message without boundary")
	}
	reader := multipart.NewReader(body, boundary)

	var fallback, fallbackCharset string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("read part: %w", err)
		}
		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, _, err := mime.ParseMediaType(partType)
		if err != nil {
			continue
		}
		if strings.HasPrefix(mediaType, "multipart/") || strings.HasPrefix(mediaType, "text/") {
			text, charset, err := readBody(partType, part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", "", err
			}
			if mediaType == "text/plain" {
				return text, charset, nil
			}
			if fallback == "" {
				fallback, fallbackCharset = text, charset
			}
		}
	}
	return fallback, fallbackCharset, nil
}

func decodeTransferEncoding(data []byte, encoding string) []byte {
	switch encoding {
	case "base64":
		cleaned := bytes.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, data)
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(cleaned)))
		n, err := base64.StdEncoding.Decode(decoded, cleaned)
		if err != nil {
			return data
		}
		return decoded[:n]
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return decoded
	default:
		return data
	}
}

func decodeCharset(data []byte, charset string) (string, error) {
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(data), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", charset, err)
	}
	return string(decoded), nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(strings.ToLower(charset))
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func decodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}

// decodeAddressList keeps display names so domain matching can see the full header.
func decodeAddressList(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	parser := mail.AddressParser{WordDecoder: headerDecoder}
	addrs, err := parser.ParseList(value)
	if err != nil {
		return decodeHeader(value)
	}
	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Name == "" {
			parts = append(parts, addr.Address)
			continue
		}
		parts = append(parts, addr.Name+" <"+addr.Address+">")
	}
	return strings.Join(parts, ", ")
}

func cleanMessageID(value string) string {
	return strings.Trim(strings.TrimSpace(value), "<>")
}
