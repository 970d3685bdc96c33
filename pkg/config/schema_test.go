package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	raw, err := json.Marshal(Schema())
	require.NoError(t, err)

	var doc struct {
		Title      string `json:"title"`
		Properties map[string]struct {
			Properties map[string]struct {
				Type       string         `json:"type"`
				Properties map[string]any `json:"properties"`
			} `json:"properties"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "goyp configuration", doc.Title)
	assert.ElementsMatch(t, []string{"logging", "client", "server", "metrics"}, keys(doc.Properties))

	client := doc.Properties["client"].Properties
	assert.Equal(t, "string", client["call_timeout"].Type)
	assert.Equal(t, "integer", client["send_size"].Type)

	ypserv := doc.Properties["server"].Properties["ypserv"].Properties
	assert.Contains(t, ypserv, "listen")
	assert.Contains(t, ypserv, "master")
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
