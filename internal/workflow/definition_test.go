package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDefinitions = `{
  "workflows": {
    "lead_generation": {
      "description": "Scout, research, and qualify local businesses",
      "enabled": true,
      "schedule": "0 8 * * *",
      "steps": [
        {"id": "scout", "agent": "scout", "action": "scout_local_businesses", "next": "research"},
        {"id": "research", "agent": "researcher", "action": "research_businesses", "next": "draft"},
        {"id": "draft", "agent": "writer", "action": "draft_outreach", "next": "review"},
        {"id": "review", "agent": "editor", "action": "review_outreach",
         "retry_on_low_score": {"threshold": 7, "max_revisions": 2, "retry_step": "draft"}}
      ]
    }
  }
}`

func TestParseDefinitions(t *testing.T) {
	defs, err := ParseDefinitions([]byte(sampleDefinitions))
	require.NoError(t, err)
	require.Contains(t, defs, "lead_generation")

	def := defs["lead_generation"]
	assert.Equal(t, "lead_generation", def.Name)
	assert.True(t, def.Enabled)
	assert.Equal(t, "0 8 * * *", def.Schedule)
	require.Len(t, def.Steps, 4)

	assert.Equal(t, "scout", def.Steps[0].ID)
	assert.Equal(t, "research", def.Steps[0].Next)

	review := def.Step("review")
	require.NotNil(t, review)
	require.NotNil(t, review.RetryOnLowScore)
	assert.Equal(t, 7.0, review.RetryOnLowScore.Threshold)
	assert.Equal(t, 2, review.RetryOnLowScore.MaxRevisions)
	assert.Equal(t, "draft", review.RetryOnLowScore.RetryStep)
	assert.Empty(t, review.Next)
}

func TestParseDefinitionsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{
			name: "missing workflows key",
			json: `{"pipelines": {}}`,
		},
		{
			name: "steps not an array",
			json: `{"workflows": {"bad": {"steps": {"id": "a"}}}}`,
		},
		{
			name: "step without id",
			json: `{"workflows": {"bad": {"steps": [{"agent": "scout"}]}}}`,
		},
		{
			name: "duplicate step id",
			json: `{"workflows": {"bad": {"steps": [{"id": "a"}, {"id": "a"}]}}}`,
		},
		{
			name: "dangling next reference",
			json: `{"workflows": {"bad": {"steps": [{"id": "a", "next": "missing"}]}}}`,
		},
		{
			name: "dangling retry reference",
			json: `{"workflows": {"bad": {"steps": [
				{"id": "a", "retry_on_low_score": {"threshold": 7, "max_revisions": 1, "retry_step": "missing"}}
			]}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinitions([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestLoadDefinitionsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefinitions), 0o644))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	assert.Contains(t, defs, "lead_generation")

	_, err = LoadDefinitions(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
