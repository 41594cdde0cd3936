// Package fetch implements message fetch and metadata extraction against
// the Gmail API (spec §4.9), grounded on the teacher's
// parseGmailMessage/extractContent/parseRFC2822Date
// (internal/email/gmail.go), generalized to the spec's stricter
// required-header and base64url-padding-tolerance rules.
package fetch

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

// Metadata is the extracted, normalized result of one message (spec §4.9).
type Metadata struct {
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	Body      string
	Headers   map[string]string // preserved-case header map
}

const defaultSubject = "(no subject)"

// ExtractMetadata builds a Metadata from a raw Gmail message. Message-ID
// and From are required; their absence is reported via the returned error
// rather than a partially populated Metadata.
func ExtractMetadata(msg *gmail.Message) (Metadata, error) {
	meta := Metadata{Headers: make(map[string]string)}

	var rawDate string
	var hasMessageID, hasFrom bool

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			meta.Headers[h.Name] = h.Value
			switch strings.ToLower(h.Name) {
			case "message-id":
				meta.MessageID = cleanMessageID(h.Value)
				hasMessageID = true
			case "from":
				meta.From = h.Value
				hasFrom = true
			case "subject":
				meta.Subject = h.Value
			case "date":
				rawDate = h.Value
			}
		}
	}

	if !hasMessageID {
		return Metadata{}, errMissingMessageID
	}
	if !hasFrom {
		return Metadata{}, errMissingFrom
	}
	if meta.Subject == "" {
		meta.Subject = defaultSubject
	}

	meta.Date = resolveDate(rawDate, msg.InternalDate)

	if msg.Payload != nil {
		meta.Body = selectBody(msg.Payload)
	}

	return meta, nil
}

func cleanMessageID(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "<") && strings.HasSuffix(raw, ">") && len(raw) >= 2 {
		return raw[1 : len(raw)-1]
	}
	return raw
}

func resolveDate(raw string, internalDateMillis int64) time.Time {
	if raw != "" {
		if t, err := parseRFC2822Date(raw); err == nil {
			return t.UTC()
		}
	}
	if internalDateMillis > 0 {
		return time.UnixMilli(internalDateMillis).UTC()
	}
	return time.Time{}
}

var rfc2822Formats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 02 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 -0700",
}

func parseRFC2822Date(raw string) (time.Time, error) {
	for _, format := range rfc2822Formats {
		if t, err := time.Parse(format, raw); err == nil {
			return t, nil
		}
	}
	return mail.ParseDate(raw)
}

// selectBody prefers text/plain over text/html when walking a (possibly
// multipart) message payload; if only text/html exists, the spec calls for
// an empty body rather than an HTML-to-text conversion.
func selectBody(payload *gmail.MessagePart) string {
	plain, _ := walkParts(payload)
	return plain
}

func walkParts(part *gmail.MessagePart) (plainText, htmlText string) {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		plainText = decodeBase64URL(part.Body.Data)
	} else if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
		htmlText = decodeBase64URL(part.Body.Data)
	}

	for _, sub := range part.Parts {
		subPlain, subHTML := walkParts(sub)
		if subPlain != "" && plainText == "" {
			plainText = subPlain
		}
		if subHTML != "" && htmlText == "" {
			htmlText = subHTML
		}
	}

	return plainText, htmlText
}

// decodeBase64URL tolerates both padded and unpadded base64url input,
// restoring padding to a length that is a multiple of 4, and replacing the
// URL-safe alphabet with the standard one before decoding. Any decode
// failure yields an empty string rather than an error (spec §4.9).
func decodeBase64URL(data string) string {
	data = strings.ReplaceAll(data, "-", "+")
	data = strings.ReplaceAll(data, "_", "/")
	if pad := len(data) % 4; pad != 0 {
		data += strings.Repeat("=", 4-pad)
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}
