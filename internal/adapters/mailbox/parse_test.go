package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMessage_PlainText(t *testing.T) {
	raw := crlf(`From: Netflix <info@mailer.netflix.com>
To: User <user@example.com>
Subject: Your Netflix receipt
Date: Mon, 02 Jan 2023 10:00:00 +0000
Message-Id: <abc123@netflix.com>
Content-Type: text/plain; charset=utf-8

Thanks for your payment of $15.49.
`)

	e, err := ParseMessage(raw, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "abc123@netflix.com", e.ID)
	assert.Equal(t, "Your Netflix receipt", e.Subject)
	assert.Equal(t, "Netflix <info@mailer.netflix.com>", e.From)
	assert.Equal(t, []string{"user@example.com"}, e.To)
	assert.Equal(t, time.Date(2023, 1, 2, 10, 0, 0, 0, time.UTC), e.Date)
	assert.Equal(t, "Thanks for your payment of $15.49.", e.BodyPlain)
}

func TestParseMessage_MultipartAlternative(t *testing.T) {
	raw := crlf(`From: Spotify <no-reply@spotify.com>
Subject: =?UTF-8?B?WW91ciBQcmVtaXVtIHJlY2VpcHQ=?=
Content-Type: multipart/alternative; boundary="XYZ"

--XYZ
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Premium plan renewed =E2=80=93 thanks!
--XYZ
Content-Type: text/html; charset=utf-8
Content-Transfer-Encoding: base64

PHA+UHJlbWl1bSBwbGFuIHJlbmV3ZWQ8L3A+
--XYZ
Content-Type: application/pdf
Content-Disposition: attachment; filename="receipt.pdf"

%PDF-1.4
--XYZ--
`)

	e, err := ParseMessage(raw, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", e.ID)
	assert.Equal(t, "Your Premium receipt", e.Subject)
	assert.Equal(t, "Premium plan renewed – thanks!", e.BodyPlain)
	assert.Equal(t, "<p>Premium plan renewed</p>", e.BodyHTML)
	assert.True(t, e.Date.IsZero())
}

func TestParseMessage_HTMLOnly(t *testing.T) {
	raw := crlf(`From: Disney+ <disneyplus@mail.disneyplus.com>
Subject: Subscription cancelled
Content-Type: text/html; charset=utf-8

<html><body><h1>We&#39;re sorry to see you go</h1><p>Your subscription &amp; billing ended.</p><script>x()</script></body></html>
`)

	e, err := ParseMessage(raw, "")
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "We're sorry to see you go Your subscription & billing ended.", e.BodyPlain)
	assert.NotContains(t, e.BodyPlain, "x()")
}

func TestParseMessage_Latin1Charset(t *testing.T) {
	raw := append(crlf("From: shop@example.com\nSubject: Bestellung\nContent-Type: text/plain; charset=iso-8859-1\n\n"), []byte("Gr\xfc\xdfe")...)

	e, err := ParseMessage(raw, "id")
	require.NoError(t, err)
	assert.Equal(t, "Grüße", e.BodyPlain)
}

func TestParseMessage_BrokenBodyLeavesFieldEmpty(t *testing.T) {
	raw := crlf(`From: a@example.com
Subject: Broken
Content-Type: text/plain
Content-Transfer-Encoding: base64

!!!not base64!!!
`)

	e, err := ParseMessage(raw, "id")
	require.NoError(t, err)
	assert.Equal(t, "Broken", e.Subject)
	assert.Empty(t, e.BodyPlain)
}

func TestParseMessage_InvalidHeaders(t *testing.T) {
	_, err := ParseMessage([]byte("not a message"), "id")
	assert.Error(t, err)
}
