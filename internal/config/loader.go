package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
	"tts": {"elevenlabs", "coqui"},
	"vad": {"energy", "silero"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.LLMFallback.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// A runnable pipeline needs at minimum STT, LLM, and TTS.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	if cfg.Providers.LLMFallback.Name != "" && cfg.Providers.LLMFallback.Name == cfg.Providers.LLM.Name && cfg.Providers.LLMFallback.Model == cfg.Providers.LLM.Model {
		slog.Warn("providers.llm_fallback is identical to providers.llm; fallback will not improve availability",
			"name", cfg.Providers.LLM.Name,
			"model", cfg.Providers.LLM.Model,
		)
	}

	// Session tuning
	s := cfg.Session
	if s.SpeedFactor != 0 {
		if s.SpeedFactor < 0.5 || s.SpeedFactor > 2.0 {
			errs = append(errs, fmt.Errorf("session.speed_factor %.2f is out of range [0.5, 2.0]", s.SpeedFactor))
		}
	}
	if s.SpeechThreshold < 0 || s.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("session.speech_threshold %.2f is out of range [0, 1]", s.SpeechThreshold))
	}
	if s.SpeechRunFrames < 0 {
		errs = append(errs, fmt.Errorf("session.speech_run_frames %d must not be negative", s.SpeechRunFrames))
	}
	if s.SentenceMinRunes < 0 {
		errs = append(errs, fmt.Errorf("session.sentence_min_runes %d must not be negative", s.SentenceMinRunes))
	}
	if s.PlaybackQueueDepth < 0 {
		errs = append(errs, fmt.Errorf("session.playback_queue_depth %d must not be negative", s.PlaybackQueueDepth))
	}
	if s.BargeInDebounceMs < 0 {
		errs = append(errs, fmt.Errorf("session.barge_in_debounce_ms %d must not be negative", s.BargeInDebounceMs))
	}
	if s.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("session.max_tokens %d must not be negative", s.MaxTokens))
	}

	// Archive availability
	if cfg.Archive.PostgresDSN == "" {
		slog.Warn("archive.postgres_dsn is empty; session archives will be kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
