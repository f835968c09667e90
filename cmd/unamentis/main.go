// Command unamentis runs the voice tutoring client: a conversation loop that
// captures speech, transcribes it, streams a tutor reply from an LLM and
// speaks it back through streaming synthesis.
//
// Audio travels over stdin/stdout as raw 16 kHz mono PCM, so the client is
// typically run inside a capture/playback pipe:
//
//	arecord -f S16_LE -r 16000 -c 1 | unamentis | aplay -f S16_LE -r 16000 -c 1
//
// With -text the client skips audio capture and reads typed messages from
// stdin instead, which is handy for trying out providers without a microphone.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/unamentis/unamentis/internal/config"
	"github.com/unamentis/unamentis/internal/curriculum"
	"github.com/unamentis/unamentis/internal/health"
	"github.com/unamentis/unamentis/internal/observe"
	"github.com/unamentis/unamentis/internal/resilience"
	"github.com/unamentis/unamentis/internal/session"
	"github.com/unamentis/unamentis/internal/telemetry"
	"github.com/unamentis/unamentis/internal/transcript"
	"github.com/unamentis/unamentis/pkg/archive"
	"github.com/unamentis/unamentis/pkg/audioio/pipe"
	"github.com/unamentis/unamentis/pkg/provider/llm"
	"github.com/unamentis/unamentis/pkg/provider/llm/anyllm"
	"github.com/unamentis/unamentis/pkg/provider/llm/openai"
	"github.com/unamentis/unamentis/pkg/provider/stt"
	"github.com/unamentis/unamentis/pkg/provider/stt/deepgram"
	"github.com/unamentis/unamentis/pkg/provider/tts"
	"github.com/unamentis/unamentis/pkg/provider/tts/elevenlabs"
	"github.com/unamentis/unamentis/pkg/provider/vad"
	"github.com/unamentis/unamentis/pkg/provider/vad/energy"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// defaultCostModel holds published list prices used for per-turn cost
// estimates: streaming STT per audio minute, LLM per million tokens and TTS
// per million characters.
var defaultCostModel = session.CostModel{
	STTPerMinuteUSD:        0.0059,
	LLMPerMillionTokensUSD: 10,
	TTSPerMillionCharsUSD:  50,
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "unamentis.yaml", "path to the YAML configuration file")
	textMode := flag.Bool("text", false, "read typed messages from stdin instead of capturing audio")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("unamentis", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config file %q not found — create one or pass -config\n", *configPath)
			return 1
		}
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("starting unamentis", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry providers ───────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "unamentis",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("init telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("init metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("build providers", "err", err)
		return 1
	}

	// ── Curriculum ────────────────────────────────────────────────────────────
	var curr curriculum.Accessor
	if cfg.Curriculum.Path != "" {
		eng, err := curriculum.Load(cfg.Curriculum.Path)
		if err != nil {
			slog.Error("load curriculum", "path", cfg.Curriculum.Path, "err", err)
			return 1
		}
		curr = eng
		slog.Info("curriculum loaded", "path", cfg.Curriculum.Path, "topics", len(eng.Topics()))
	}

	// ── Session archive ───────────────────────────────────────────────────────
	var (
		archiver archive.Archiver
		pool     *pgxpool.Pool
	)
	if cfg.Archive.PostgresDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Archive.PostgresDSN)
		if err != nil {
			slog.Error("connect archive database", "err", err)
			return 1
		}
		defer pool.Close()

		pg := archive.NewPostgresArchiver(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("migrate archive schema", "err", err)
			return 1
		}
		archiver = pg
		slog.Info("session archive enabled", "backend", "postgres")
	} else {
		archiver = archive.NewMemArchiver()
		slog.Info("session archive enabled", "backend", "memory")
	}

	// ── Audio engine ──────────────────────────────────────────────────────────
	var (
		audioIn  io.Reader = os.Stdin
		audioOut io.Writer = os.Stdout
	)
	if *textMode {
		// Typed input owns stdin, and raw PCM on a terminal is just noise.
		audioIn = nil
		audioOut = nil
	}
	var engineOpts []pipe.Option
	if cfg.Session.PlaybackQueueDepth > 0 {
		engineOpts = append(engineOpts, pipe.WithQueueDepth(cfg.Session.PlaybackQueueDepth))
	}
	engine := pipe.NewEngine(audioIn, audioOut, engineOpts...)
	defer engine.Close()

	// ── Orchestrator ──────────────────────────────────────────────────────────
	recorder := telemetry.NewRecorder()

	opts := []session.Option{
		session.WithRecorder(recorder),
		session.WithMetrics(metrics),
		session.WithCostModel(defaultCostModel),
		session.WithProviderNames(session.ProviderNames{
			STT: cfg.Providers.STT.Name,
			LLM: cfg.Providers.LLM.Name,
			TTS: cfg.Providers.TTS.Name,
		}),
	}
	if curr != nil {
		opts = append(opts, session.WithCurriculum(curr))
	}
	if cfg.Session.Language != "" {
		opts = append(opts, session.WithLanguage(cfg.Session.Language))
	}
	if cfg.Session.VoiceID != "" {
		opts = append(opts, session.WithVoice(tts.VoiceProfile{
			ID:          cfg.Session.VoiceID,
			Provider:    cfg.Providers.TTS.Name,
			SpeedFactor: cfg.Session.SpeedFactor,
		}))
	}
	if cfg.Session.SystemPrompt != "" {
		opts = append(opts, session.WithSystemPrompt(cfg.Session.SystemPrompt))
	}
	if cfg.Session.Temperature > 0 {
		opts = append(opts, session.WithTemperature(cfg.Session.Temperature))
	}
	if cfg.Session.MaxTokens > 0 {
		opts = append(opts, session.WithMaxTokens(cfg.Session.MaxTokens))
	}
	if cfg.Session.SpeechThreshold > 0 {
		opts = append(opts, session.WithSpeechThreshold(cfg.Session.SpeechThreshold))
	}
	if cfg.Session.SpeechRunFrames > 0 {
		opts = append(opts, session.WithSpeechRunFrames(cfg.Session.SpeechRunFrames))
	}
	if cfg.Session.SentenceMinRunes > 0 {
		opts = append(opts, session.WithSentenceMinRunes(cfg.Session.SentenceMinRunes))
	}
	if cfg.Session.BargeInDebounceMs > 0 {
		opts = append(opts, session.WithBargeInDebounce(time.Duration(cfg.Session.BargeInDebounceMs)*time.Millisecond))
	}

	orch := session.New(engine, ps.VAD, ps.STT, ps.LLM, ps.TTS, opts...)

	// ── Metrics / health server ───────────────────────────────────────────────
	var httpSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		checkers := []health.Checker{health.SessionCheck(orch.ErrorMessage)}
		if pool != nil {
			checkers = append(checkers, health.Checker{
				Name:  "archive",
				Check: pool.Ping,
			})
		}

		mux := http.NewServeMux()
		health.New(checkers...).Register(mux)
		mux.Handle("/metrics", promhttp.Handler())

		httpSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("metrics server listening", "addr", cfg.Server.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server", "err", err)
			}
		}()
	}

	// ── Config hot reload ────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SessionChanged || d.CurriculumChanged {
			slog.Info("session settings changed on disk; restart to apply")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, *textMode)

	// ── Conversation ─────────────────────────────────────────────────────────
	sess, err := orch.StartSession(ctx)
	if err != nil {
		slog.Error("start session", "err", err)
		return 1
	}
	slog.Info("session started", "id", sess.ID, "topic", sess.TopicTitle)

	if *textMode {
		go printAssistantReplies(orch)
		go textLoop(ctx, orch, stop)
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping")

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	stopped, entries, err := orch.StopSession(shutdownCtx)
	if err != nil {
		slog.Error("stop session", "err", err)
		return 1
	}
	orch.Wait()

	logSessionSummary(recorder, stopped)

	rec := archiveRecord(stopped, entries, recorder.GetTotalCost(stopped.ID))
	if err := archiver.Save(shutdownCtx, rec); err != nil {
		slog.Error("archive session", "id", stopped.ID, "err", err)
	} else {
		slog.Info("session archived", "id", stopped.ID, "entries", len(entries))
	}

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "err", err)
		}
	}

	slog.Info("goodbye")
	return 0
}

// textLoop feeds typed stdin lines into the conversation until EOF or ctx
// cancellation, then triggers shutdown.
func textLoop(ctx context.Context, orch *session.Orchestrator, stop func()) {
	defer stop()

	fmt.Fprintln(os.Stderr, "type a message and press enter (ctrl-d to quit)")
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := orch.SendTextMessage(ctx, line); err != nil {
			switch {
			case errors.Is(err, session.ErrTurnInFlight):
				fmt.Fprintln(os.Stderr, "(still answering — wait for the current reply)")
			case errors.Is(err, session.ErrNoSession):
				return
			default:
				slog.Error("send message", "err", err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		slog.Warn("stdin read", "err", err)
	}
}

// printAssistantReplies prints each newly completed assistant transcript entry
// whenever the conversation returns to idle.
func printAssistantReplies(orch *session.Orchestrator) {
	states := orch.Subscribe()
	printed := 0
	for st := range states {
		if st != session.StateIdle {
			continue
		}
		entries := orch.Entries()
		for ; printed < len(entries); printed++ {
			e := entries[printed]
			if e.Role == transcript.RoleAssistant {
				fmt.Printf("tutor: %s\n", e.Text)
			}
		}
	}
}

// logSessionSummary logs the per-session latency and cost aggregates.
func logSessionSummary(rec *telemetry.Recorder, sess *session.Session) {
	turn := rec.GetLatencyStats(sess.ID, telemetry.CategoryTurn)
	ttft := rec.GetLatencyStats(sess.ID, telemetry.CategoryLLMTTFT)
	slog.Info("session summary",
		"id", sess.ID,
		"turns", sess.TurnCount,
		"turn_latency_avg_ms", turn.Average,
		"turn_latency_p99_ms", turn.P99,
		"llm_ttft_avg_ms", ttft.Average,
		"total_cost_usd", rec.GetTotalCost(sess.ID),
	)
}

// archiveRecord converts a finished session and its transcript into an
// archive record.
func archiveRecord(sess *session.Session, entries []transcript.Entry, totalCost float64) *archive.Record {
	rec := &archive.Record{
		SessionID: sess.ID,
		TopicID:   sess.TopicID,
		StartedAt: sess.StartedAt,
		EndedAt:   sess.EndedAt,
		TurnCount: sess.TurnCount,
		TotalCost: totalCost,
		Entries:   make([]archive.Entry, 0, len(entries)),
	}
	for _, e := range entries {
		rec.Entries = append(rec.Entries, archive.Entry{
			ID:        e.ID,
			Role:      string(e.Role),
			Text:      e.Text,
			Timestamp: e.Timestamp,
			Metadata:  e.Metadata,
		})
	}
	return rec
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providers bundles the concrete provider set the orchestrator runs on.
type providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
	VAD vad.Detector
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a [config.ProviderEntry] and constructs a provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai uses the native SDK client.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted backends share the any-llm pattern: optional
	// APIKey plus optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not a key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if ms := optInt(entry.Options, "endpointing_ms"); ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Detector, error) {
		var opts []energy.Option
		if r := optFloat(entry.Options, "speech_ratio"); r > 0 {
			opts = append(opts, energy.WithSpeechRatio(r))
		}
		return energy.New(opts...), nil
	})
}

// buildProviders instantiates the providers named in cfg via the registry.
// STT, LLM and TTS are mandatory; VAD falls back to the energy detector when
// not configured. An optional fallback LLM is layered behind a circuit
// breaker around the primary.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	ps := &providers{}
	var err error

	if ps.STT, err = reg.CreateSTT(cfg.Providers.STT); err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if ps.LLM, err = reg.CreateLLM(cfg.Providers.LLM); err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if name := cfg.Providers.LLMFallback.Name; name != "" {
		fallback, err := reg.CreateLLM(cfg.Providers.LLMFallback)
		if err != nil {
			return nil, fmt.Errorf("create fallback llm provider %q: %w", name, err)
		}
		wrapped := resilience.NewLLMFallback(ps.LLM, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		wrapped.AddFallback(name, fallback)
		ps.LLM = wrapped
		slog.Info("provider created", "kind", "llm-fallback", "name", name)
	}

	if ps.TTS, err = reg.CreateTTS(cfg.Providers.TTS); err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if name := cfg.Providers.VAD.Name; name != "" {
		ps.VAD, err = reg.CreateVAD(cfg.Providers.VAD)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("vad provider not built in, using energy detector", "name", name)
			ps.VAD = energy.New()
		} else if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		} else {
			slog.Info("provider created", "kind", "vad", "name", name)
		}
	} else {
		ps.VAD = energy.New()
		slog.Info("provider created", "kind", "vad", "name", "energy (default)")
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, textMode bool) {
	mode := "voice (PCM over stdio)"
	if textMode {
		mode = "text"
	}
	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║        unamentis — startup summary    ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("LLM fallback", cfg.Providers.LLMFallback.Name, cfg.Providers.LLMFallback.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printSummaryRow("Mode", mode)
	if cfg.Curriculum.Path != "" {
		printSummaryRow("Curriculum", cfg.Curriculum.Path)
	}
	if cfg.Server.MetricsAddr != "" {
		printSummaryRow("Metrics addr", cfg.Server.MetricsAddr)
	}
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printSummaryRow(kind, value)
}

func printSummaryRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// optInt extracts an integer option. YAML decodes untyped numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// optFloat extracts a float option, accepting integer YAML values too.
func optFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
