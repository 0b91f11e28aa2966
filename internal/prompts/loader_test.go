package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKnownPrompt(t *testing.T) {
	ClearCache()
	prompt, err := Get("steps.json", "scout_local_businesses")
	require.NoError(t, err)
	assert.Contains(t, prompt, "{{.Location}}")
	assert.Contains(t, prompt, "Return ONLY valid JSON")
}

func TestGetUnknownKey(t *testing.T) {
	_, err := Get("steps.json", "does_not_exist")
	assert.Error(t, err)
}

func TestGetUnknownFile(t *testing.T) {
	_, err := Get("missing.json", "anything")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	out := Format("Area: {{.Location}} / {{.Location}}", map[string]string{"Location": "CDMX"})
	assert.Equal(t, "Area: CDMX / CDMX", out)

	// Unknown placeholders are left untouched.
	out = Format("{{.Missing}}", map[string]string{"Location": "CDMX"})
	assert.Equal(t, "{{.Missing}}", out)
}

func TestList(t *testing.T) {
	keys, err := List("steps.json")
	require.NoError(t, err)
	assert.Contains(t, keys, "draft_outreach")
	assert.Contains(t, keys, "review_and_score")
}
