package smtpd

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseMail(t *testing.T, raw string) *mail.Message {
	t.Helper()
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)
	return msg
}

func TestExtractTextPlainMessage(t *testing.T) {
	msg := parseMail(t, "From: info@netflix.com\r\n"+
		"Subject: Welcome to Netflix\r\n"+
		"\r\n"+
		"Your free trial ends on July 15, 2025.\r\n")

	text, err := extractTextFromMessage(msg)
	require.NoError(t, err)
	assert.Contains(t, text, "Your free trial ends on July 15, 2025.")
}

func TestExtractTextPrefersPlainPart(t *testing.T) {
	raw := "From: info@netflix.com\r\n" +
		"Subject: Welcome\r\n" +
		"Content-Type: multipart/alternative; boundary=SEP\r\n" +
		"\r\n" +
		"--SEP\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Your free trial ends on July 15, 2025.</p>\r\n" +
		"--SEP\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Your free trial ends on July 15, 2025.\r\n" +
		"--SEP--\r\n"

	text, err := extractTextFromMessage(parseMail(t, raw))
	require.NoError(t, err)
	assert.Contains(t, text, "Your free trial ends on July 15, 2025.")
	assert.NotContains(t, text, "<p>")
}

func TestExtractTextBadBoundaryFallsBackToRawBody(t *testing.T) {
	raw := "From: info@netflix.com\r\n" +
		"Content-Type: multipart/alternative\r\n" +
		"\r\n" +
		"raw body content\r\n"

	text, err := extractTextFromMessage(parseMail(t, raw))
	require.NoError(t, err)
	assert.Contains(t, text, "raw body content")
}
