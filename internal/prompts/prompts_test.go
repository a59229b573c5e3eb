package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), set)
}

func TestLoadOverridesOnlyProvidedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compare_images: \"Spot the differences.\"\nsummarize: \"  \"\n"), 0o600))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Spot the differences.", set.CompareImages)
	assert.Equal(t, Default().Summarize, set.Summarize)
	assert.Equal(t, Default().AnalyzeTranscript, set.AnalyzeTranscript)
}

func TestLoadReportsBadFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compare_images: [unterminated"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
}
