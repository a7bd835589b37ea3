package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/lotus-agent/internal/model"
)

func ipValues(matches []model.IndicatorMatch) []string {
	var out []string
	for _, m := range matches {
		out = append(out, m.Value)
	}
	return out
}

func TestExtractIndicators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want []string
	}{
		{"two in order", "deny 10.1.1.1 connecting to 10.2.2.2", []string{"10.1.1.1", "10.2.2.2"}},
		{"component too large", "blocked 999.1.1.1", nil},
		{"256 rejected", "peer 256.0.0.1 and 255.255.255.255", []string{"255.255.255.255"}},
		{"zeros", "bind 0.0.0.0:80", []string{"0.0.0.0"}},
		{"no candidates", "nothing to see here", nil},
		{"incomplete quad", "version 1.2.3 released", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractIndicators(tt.line)
			assert.Equal(t, tt.want, ipValues(got))
			for _, m := range got {
				assert.Equal(t, model.IndicatorIP, m.Kind)
			}
		})
	}
}

func TestParseMetadata_LevelAndApp(t *testing.T) {
	t.Parallel()

	md := ParseMetadata("WARN routerd[1234]: drop src=1.1.1.1")
	assert.Equal(t, "WARN", md.Level)
	assert.Equal(t, "routerd", md.AppName)
	assert.Nil(t, md.ObservedAt)
}

func TestParseMetadata_ObservedTimestamp(t *testing.T) {
	t.Parallel()

	md := ParseMetadata("2024-02-01T01:02:03Z firewall allow src=10.0.0.1")
	require.NotNil(t, md.ObservedAt)
	assert.True(t, md.ObservedAt.Equal(time.Date(2024, 2, 1, 1, 2, 3, 0, time.UTC)))
	assert.Equal(t, time.UTC, md.ObservedAt.Location())
}

func TestParseMetadata_Empty(t *testing.T) {
	t.Parallel()

	md := ParseMetadata("plain text without markers")
	assert.Empty(t, md.Level)
	assert.Empty(t, md.AppName)
	assert.Nil(t, md.ObservedAt)
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	lines := []string{
		"deny 10.1.1.1 connecting to 10.2.2.2",
		"2024-02-01T01:02:03Z sshd[22]: level=error auth failed from 192.168.0.9",
		"blocked 999.1.1.1",
		"",
	}
	for _, line := range lines {
		ev := model.NewEvent("test", line)
		Normalize(ev)
		first := *ev
		Normalize(ev)
		assert.Equal(t, first.Indicators, ev.Indicators, line)
		assert.Equal(t, first.Metadata, ev.Metadata, line)
	}
}
