package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSponsorInvite(t *testing.T) {
	subject, body, err := Render(TemplateSponsorInvite, map[string]any{
		"practitioner_name": "Ada",
		"accept_url":        "https://app.example.com/sponsors/accept?id=1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada invited you to be their sponsor", subject)
	assert.Contains(t, body, "https://app.example.com/sponsors/accept?id=1")
}

func TestRenderEscapesInput(t *testing.T) {
	_, body, err := Render(TemplateSponsorInvite, map[string]any{"practitioner_name": "<b>x</b>"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<b>x</b>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestRecordingProvider(t *testing.T) {
	p := &RecordingProvider{}
	require.NoError(t, p.SendTemplate(context.Background(), []string{"a@example.com"}, TemplatePasswordReset, map[string]any{
		"reset_url": "https://x", "expires_in": "30 minutes",
	}))
	sent := p.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Reset your VirtuePath password", sent[0].Subject)

	p.Err = errors.New("smtp down")
	assert.Error(t, p.Send(context.Background(), []string{"a@example.com"}, "s", "b"))
}
