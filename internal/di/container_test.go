package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/core"
)

func TestCreateConfigFromFlags(t *testing.T) {
	flags := &CLIFlags{
		Dir:       "/tmp/mail",
		MaxTotal:  50,
		StoreType: "memory",
		Provider:  "openai",
		Threshold: 0.9,
		Analysis:  true,

		OpenAIAPIKey: "sk-test",
	}

	cfg := createConfigFromFlags(flags)

	assert.Equal(t, "eml_dir", cfg.GetMailbox().Type)
	assert.Equal(t, "/tmp/mail", cfg.GetMailbox().EmlDir)
	assert.Equal(t, 50, cfg.GetMailbox().MaxTotal)
	assert.Equal(t, "memory", cfg.GetStore().Type)
	assert.Equal(t, "openai", cfg.GetLLM().Provider)
	assert.Equal(t, "sk-test", cfg.GetOpenAI().APIKey)
	assert.False(t, cfg.GetSMTPSpool().Enabled)

	cc, err := cfg.GetClassifier()
	require.NoError(t, err)
	assert.Equal(t, 0.9, cc.ConfidenceThreshold)
	assert.True(t, cc.LLMAnalysisEnabled)
}

func TestBuildCLIContainer_WiresRefreshService(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.eml"), []byte("From: a@b.com\r\nSubject: hi\r\n\r\nbody\r\n"), 0644))

	flags := &CLIFlags{
		Dir:       dir,
		MaxTotal:  10,
		UserID:    "u1",
		StoreType: "memory",
		Provider:  "huggingface",
		Threshold: 0.75,
	}

	container, err := BuildCLIContainer(flags)
	require.NoError(t, err)

	err = container.Invoke(func(cfg *config.Config, refresh *core.RefreshService, seeder *core.PatternSeeder) {
		assert.Equal(t, dir, cfg.GetMailbox().EmlDir)
		assert.NotNil(t, refresh)
		assert.NotNil(t, seeder)
	})
	require.NoError(t, err)
}
