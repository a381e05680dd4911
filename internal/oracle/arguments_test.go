package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]interface{}
	}{
		{"Plain Object", `{"selector":"#buy"}`, map[string]interface{}{"selector": "#buy"}},
		{"Empty", "  ", map[string]interface{}{}},
		{"Fenced", "```json\n{\"url\":\"https://shop.example\"}\n```", map[string]interface{}{"url": "https://shop.example"}},
		{"Fenced Without Language", "```\n{\"text\":\"hi\"}\n```", map[string]interface{}{"text": "hi"}},
		{"Surrounding Prose", `Here you go: {"result":"$29/mo"} hope that helps`, map[string]interface{}{"result": "$29/mo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArguments(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArguments_Rejects(t *testing.T) {
	for _, raw := range []string{"{selector", "no json here", `["a","b"]`} {
		_, err := parseArguments(raw)
		assert.Error(t, err, raw)
	}
}
