package mailbox

import (
	"bytes"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tracyhatemice/mailwake/internal/event"
)

// ParseMessage extracts sender, subject and a text preview from a raw
// RFC 5322 message. Truncated or malformed input yields whatever could be
// read before the error.
func ParseMessage(raw []byte) Summary {
	var sum Summary
	if len(raw) == 0 {
		return sum
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return sum
	}
	defer mr.Close()

	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		sum.From = formatAddress(addrs[0].Name, addrs[0].Address)
	} else {
		sum.From = mr.Header.Get("From")
	}
	if subject, err := mr.Header.Subject(); err == nil {
		sum.Subject = subject
	}

	var htmlText string
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, _ := io.ReadAll(io.LimitReader(part.Body, fetchLimit))
		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			sum.Preview = compact(string(body))
			return sum
		case strings.HasPrefix(contentType, "text/html") && htmlText == "":
			htmlText = htmlToText(string(body))
		}
	}
	sum.Preview = compact(htmlText)
	return sum
}

// htmlToText keeps the decoded text nodes of an HTML body. Content of
// style and script elements is dropped.
func htmlToText(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			if isHidden(z) {
				skip++
			}
		case html.EndTagToken:
			if isHidden(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Style, atom.Script, atom.Title:
		return true
	}
	return false
}

// compact collapses whitespace and bounds the preview length.
func compact(s string) string {
	return event.Truncate(strings.Join(strings.Fields(s), " "), event.PreviewLimit)
}

func formatAddress(name, addr string) string {
	switch {
	case name == "":
		return addr
	case addr == "":
		return name
	default:
		return name + " <" + addr + ">"
	}
}

func (s Summary) withDefaults() Summary {
	if s.From == "" {
		s.From = "Unknown"
	}
	if s.Subject == "" {
		s.Subject = "(no subject)"
	}
	return s
}
