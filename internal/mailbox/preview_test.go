package mailbox

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/tracyhatemice/mailwake/internal/event"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMessagePlainText(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: Alice Example <alice@example.com>
Subject: Lunch?
Content-Type: text/plain; charset=utf-8

Are you free
  at noon?
`)

	sum := ParseMessage(raw)
	assert.Equal(t, "Alice Example <alice@example.com>", sum.From)
	assert.Equal(t, "Lunch?", sum.Subject)
	assert.Equal(t, "Are you free at noon?", sum.Preview)
}

func TestParseMessagePrefersPlainPartInMultipart(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: notifications@github.com
Subject: =?utf-8?q?Re=3A_fix_bug?=
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=XYZ

--XYZ
Content-Type: text/html; charset=utf-8

<p>html body</p>
--XYZ
Content-Type: text/plain; charset=utf-8

plain body
--XYZ--
`)

	sum := ParseMessage(raw)
	assert.Equal(t, "notifications@github.com", sum.From)
	assert.Equal(t, "Re: fix bug", sum.Subject)
	assert.Equal(t, "plain body", sum.Preview)
}

func TestParseMessageFallsBackToStrippedHTML(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: shop@example.com
Subject: Sale
Content-Type: text/html; charset=utf-8

<html><body><h1>Big</h1> <b>sale</b></body></html>
`)

	sum := ParseMessage(raw)
	assert.Equal(t, "Big sale", sum.Preview)
}

func TestParseMessageHTMLDecodesEntitiesAndDropsStyle(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: shop@example.com
Subject: Deal
Content-Type: text/html; charset=utf-8

<html><head><title>Newsletter</title><style>body { color: red; }</style>
<script>var x = 1 < 2;</script></head>
<body><p>Tom &amp; Jerry&nbsp;50&#37; off</p></body></html>
`)

	sum := ParseMessage(raw)
	assert.Equal(t, "Tom & Jerry 50% off", sum.Preview)
}

func TestParseMessageBoundsPreview(t *testing.T) {
	t.Parallel()

	raw := crlf("From: a@example.com\nSubject: long\nContent-Type: text/plain\n\n" + strings.Repeat("word ", 1000) + "\n")

	sum := ParseMessage(raw)
	assert.LessOrEqual(t, utf8.RuneCountInString(sum.Preview), event.PreviewLimit)
}

func TestParseMessageGarbage(t *testing.T) {
	t.Parallel()

	sum := ParseMessage(nil).withDefaults()
	assert.Equal(t, "Unknown", sum.From)
	assert.Equal(t, "(no subject)", sum.Subject)
}
