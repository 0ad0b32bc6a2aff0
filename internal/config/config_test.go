package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	classifier, err := cfg.GetClassifier()
	require.NoError(t, err)
	assert.Equal(t, 0.75, classifier.ConfidenceThreshold)
	assert.Equal(t, 4, classifier.Concurrency)
	assert.Equal(t, 500, classifier.MaxContentChars)
	assert.Equal(t, 30*time.Second, classifier.RequestTimeout)
	assert.Equal(t, 90*24*time.Hour, classifier.InactivityThreshold)
	assert.Equal(t, 3, classifier.MinRejectionVotes)
	assert.False(t, classifier.LLMAnalysisEnabled)

	feedback, err := cfg.GetFeedback()
	require.NoError(t, err)
	assert.Equal(t, 3, feedback.MinVotes)
	assert.Equal(t, 0.67, feedback.Supermajority)
	assert.Equal(t, 24*time.Hour, feedback.Interval)
	assert.Equal(t, 15*time.Minute, feedback.InitialDelay)

	cache, err := cfg.GetCache()
	require.NoError(t, err)
	assert.True(t, cache.Enabled)
	assert.Equal(t, "memory", cache.Type)
	assert.Equal(t, 7*24*time.Hour, cache.TTL)

	assert.Equal(t, "huggingface", cfg.GetLLM().Provider)
	assert.Equal(t, "sqlite", cfg.GetStore().Type)
	assert.Equal(t, "eml_dir", cfg.GetMailbox().Type)
	assert.Equal(t, 1000, cfg.GetMailbox().MaxTotal)
	assert.False(t, cfg.GetSMTPSpool().Enabled)
	assert.Equal(t, int64(10*1024*1024), cfg.GetSMTPSpool().MaxMessageBytes)
	assert.True(t, cfg.GetPatterns().SeedOnStart)
	assert.Equal(t, "json", cfg.GetLogging().Format)
}

func TestGetDuration_Invalid(t *testing.T) {
	v := NewEmptyViper()
	v.Set("feedback.interval", "daily")
	cfg := NewFromViper(v)

	_, err := cfg.GetFeedback()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feedback.interval")

	v.Set("classifier.request_timeout", "")
	_, err = cfg.GetClassifier()
	assert.Error(t, err)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
classifier:
  confidence_threshold: 0.9
  llm_analysis_enabled: true
patterns:
  generic_tokens: ["mailer", "notify"]
store:
  type: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	classifier, err := cfg.GetClassifier()
	require.NoError(t, err)
	assert.Equal(t, 0.9, classifier.ConfidenceThreshold)
	assert.True(t, classifier.LLMAnalysisEnabled)
	assert.Equal(t, 4, classifier.Concurrency)
	assert.Equal(t, []string{"mailer", "notify"}, cfg.GetPatterns().GenericTokens)
	assert.Equal(t, "memory", cfg.GetStore().Type)
}

func TestNewFromFile_Missing(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
