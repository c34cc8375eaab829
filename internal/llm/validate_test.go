package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoreSchema = &Schema{
	Name: "test-score",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":     map[string]any{"type": "integer", "minimum": 0, "maximum": 4},
			"rationale": map[string]any{"type": "string"},
		},
		"required":             []string{"score", "rationale"},
		"additionalProperties": false,
	},
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"score":3,"rationale":"ok"}`, false},
		{"fenced", "```json\n{\"score\":3,\"rationale\":\"ok\"}\n```", false},
		{"not json", `Score: 3`, true},
		{"out of range", `{"score":7,"rationale":"ok"}`, true},
		{"missing field", `{"score":2}`, true},
		{"extra field", `{"score":2,"rationale":"ok","bonus":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(scoreSchema, json.RawMessage(tt.raw))
			if tt.wantErr {
				var inv *ErrInvalidResponse
				require.ErrorAs(t, err, &inv)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateContent_NilSchema(t *testing.T) {
	assert.NoError(t, ValidateContent(nil, json.RawMessage(`not json`)))
}

func TestClean(t *testing.T) {
	got := Clean(json.RawMessage("```json\n{\"a\":1}\n```"))
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Provider: ProviderMock, Retry: DefaultRetry()}.Validate())
	assert.Error(t, Config{Provider: ProviderAnthropic, Retry: DefaultRetry()}.Validate())
	assert.Error(t, Config{Provider: "llama", Retry: DefaultRetry()}.Validate())
	assert.Error(t, Config{Provider: ProviderMock}.Validate())
}
