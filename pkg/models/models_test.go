package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityList_ValueScan(t *testing.T) {
	list := QualityList{"1080p", "480p"}

	value, err := list.Value()
	require.NoError(t, err)
	require.NotNil(t, value)

	var scanned QualityList
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, list, scanned)
}

func TestQualityList_Contains(t *testing.T) {
	list := QualityList{"720p", "480p"}

	assert.True(t, list.Contains("720p"))
	assert.True(t, list.Contains("480p"))
	assert.False(t, list.Contains("1080p"))
	assert.False(t, list.Contains(""))
}

func TestQualityConfigsFor_LadderOrder(t *testing.T) {
	// Request out of ladder order; configs come back highest first.
	configs := QualityConfigsFor(QualityList{"240p", "1080p", "480p"})

	require.Len(t, configs, 3)
	assert.Equal(t, "1080p", configs[0].Quality)
	assert.Equal(t, "480p", configs[1].Quality)
	assert.Equal(t, "240p", configs[2].Quality)

	assert.Equal(t, 1920, configs[0].Width)
	assert.Equal(t, 1080, configs[0].Height)
	assert.Positive(t, configs[0].VideoBitrate)
}

func TestIsKnownQuality(t *testing.T) {
	for _, q := range Qualities {
		assert.True(t, IsKnownQuality(q), q)
	}
	assert.False(t, IsKnownQuality("4k"))
	assert.False(t, IsKnownQuality(""))
}

func TestIsTerminalVideoStatus(t *testing.T) {
	terminal := []string{
		VideoStatusReady,
		VideoStatusFailedEncoding,
		VideoStatusFailedTranscription,
		VideoStatusFailedIndexing,
	}
	for _, s := range terminal {
		assert.True(t, IsTerminalVideoStatus(s), s)
	}

	inProgress := []string{
		VideoStatusPending,
		VideoStatusUploading,
		VideoStatusEncoding,
		VideoStatusTranscribing,
		VideoStatusIndexing,
	}
	for _, s := range inProgress {
		assert.False(t, IsTerminalVideoStatus(s), s)
	}
}
