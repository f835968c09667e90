package config_test

import (
	"strings"
	"testing"

	"github.com/unamentis/unamentis/internal/config"
)

const sampleYAML = `
server:
  metrics_addr: ":9090"
  log_level: info

providers:
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-2
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  llm_fallback:
    name: ollama
    base_url: http://localhost:11434
    model: llama3.2
  tts:
    name: elevenlabs
    api_key: el-test
    model: eleven_flash_v2_5
  vad:
    name: energy

session:
  language: en-US
  voice_id: rachel-v1
  speed_factor: 1.1
  temperature: 0.7
  max_tokens: 512
  sentence_min_runes: 40
  playback_queue_depth: 16

curriculum:
  path: topics.yaml

archive:
  postgres_dsn: "postgres://localhost/unamentis"
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("metrics_addr: got %q, want %q", cfg.Server.MetricsAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Providers.STT.Name != "deepgram" || cfg.Providers.STT.Model != "nova-2" {
		t.Errorf("stt entry: got %+v", cfg.Providers.STT)
	}
	if cfg.Providers.LLMFallback.BaseURL != "http://localhost:11434" {
		t.Errorf("llm_fallback.base_url: got %q", cfg.Providers.LLMFallback.BaseURL)
	}
	if cfg.Session.Language != "en-US" {
		t.Errorf("session.language: got %q", cfg.Session.Language)
	}
	if cfg.Session.SentenceMinRunes != 40 {
		t.Errorf("session.sentence_min_runes: got %d, want 40", cfg.Session.SentenceMinRunes)
	}
	if cfg.Curriculum.Path != "topics.yaml" {
		t.Errorf("curriculum.path: got %q", cfg.Curriculum.Path)
	}
	if cfg.Archive.PostgresDSN != "postgres://localhost/unamentis" {
		t.Errorf("archive.postgres_dsn: got %q", cfg.Archive.PostgresDSN)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  stt:
    name: deepgram
  tts:
    name: elevenlabs
sessionn:
  language: en-US
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
providers:
  llm:
    name: openai
  stt:
    name: deepgram
  tts:
    name: elevenlabs
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MissingCoreProviders(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`session: {language: en-US}`))
	if err == nil {
		t.Fatal("expected error for missing providers, got nil")
	}
	for _, want := range []string{"providers.llm.name", "providers.stt.name", "providers.tts.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_SpeedFactorOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  stt:
    name: deepgram
  tts:
    name: elevenlabs
session:
  speed_factor: 3.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range speed_factor, got nil")
	}
	if !strings.Contains(err.Error(), "speed_factor") {
		t.Errorf("error should mention speed_factor, got: %v", err)
	}
}

func TestValidate_NegativeTuningValues(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  stt:
    name: deepgram
  tts:
    name: elevenlabs
session:
  speech_run_frames: -1
  playback_queue_depth: -4
  barge_in_debounce_ms: -100
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative tuning values, got nil")
	}
	for _, want := range []string{"speech_run_frames", "playback_queue_depth", "barge_in_debounce_ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_SpeechThresholdRange(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  stt:
    name: deepgram
  tts:
    name: elevenlabs
session:
  speech_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range speech_threshold, got nil")
	}
	if !strings.Contains(err.Error(), "speech_threshold") {
		t.Errorf("error should mention speech_threshold, got: %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("level %q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("level \"trace\" should not be valid")
	}
}
