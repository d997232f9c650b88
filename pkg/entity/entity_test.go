package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievanceplatform/orchestrator/core"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		id     string
		key    core.EntityKey
		office string
		source Source
	}{
		{"GR-20250101-KOJH-ABCD-A", core.EntityKeyGrievance, "KOJH", SourceAccessible},
		{"CM-20250101-KOJH-ABCD-B", core.EntityKeyComplainant, "KOJH", SourceBot},
		{"REC-20250101-KOJH-1234-B", core.EntityKeyRecording, "KOJH", SourceBot},
		{"TR-20250101-KOJH-1234-A", core.EntityKeyTranscription, "KOJH", SourceAccessible},
		{"TL-20250101-KOJH-1234-A", core.EntityKeyTranslation, "KOJH", SourceAccessible},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			parsed, err := Parse(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.key, parsed.Key)
			assert.Equal(t, tt.office, parsed.Office)
			assert.Equal(t, tt.source, parsed.Source)
			assert.Equal(t, 2025, parsed.Date.Year())
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"too few segments", "GR-20250101-KOJH-A"},
		{"too many segments", "GR-2025-01-01-KOJH-ABCD-A"},
		{"unknown prefix", "XX-20250101-KOJH-ABCD-A"},
		{"invalid date", "GR-notadate-KOJH-ABCD-A"},
		{"invalid source", "GR-20250101-KOJH-ABCD-Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.id)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrMalformedEntityID))
		})
	}
}

func TestParsed_RoutesToBus(t *testing.T) {
	accessible, err := Parse("GR-20250101-KOJH-ABCD-A")
	require.NoError(t, err)
	assert.True(t, accessible.RoutesToBus())

	bot, err := Parse("GR-20250101-KOJH-ABCD-B")
	require.NoError(t, err)
	assert.False(t, bot.RoutesToBus())
}

func TestGenerate(t *testing.T) {
	fixed := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)

	id, err := Generate(core.EntityKeyGrievance, GenerateOptions{
		Province: "Koshi",
		District: "Jhapa",
		Source:   SourceAccessible,
		Now:      fixed,
	})
	require.NoError(t, err)

	parsed, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, core.EntityKeyGrievance, parsed.Key)
	assert.Equal(t, "KOJH", parsed.Office)
	assert.Equal(t, SourceAccessible, parsed.Source)
	assert.Equal(t, fixed.Format("20060102"), parsed.Date.Format("20060102"))
}

func TestGenerate_OfficeOverridesProvinceDistrict(t *testing.T) {
	id, err := Generate(core.EntityKeyComplainant, GenerateOptions{
		Office:   "central_office",
		Province: "Bagmati",
		District: "Kathmandu",
	})
	require.NoError(t, err)

	parsed, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, "CENT", parsed.Office)
}

func TestGenerate_DefaultsSourceToBot(t *testing.T) {
	id, err := Generate(core.EntityKeyRecording, GenerateOptions{Province: "KO", District: "JH"})
	require.NoError(t, err)

	parsed, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, SourceBot, parsed.Source)
}

func TestGenerate_UnknownKey(t *testing.T) {
	_, err := Generate(core.EntityKey("unknown"), GenerateOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownEntityKey))
}

func TestGenerate_ShortProvinceDistrictPadded(t *testing.T) {
	id, err := Generate(core.EntityKeyGrievance, GenerateOptions{Province: "K", District: "J"})
	require.NoError(t, err)

	parsed, err := Parse(id)
	require.NoError(t, err)
	assert.Len(t, parsed.Office, 4)
	assert.Equal(t, "KXJX", parsed.Office)
}
