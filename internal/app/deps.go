package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"village-assist/internal/answer"
	"village-assist/internal/cache"
	"village-assist/internal/config"
	"village-assist/internal/embeddings"
	"village-assist/internal/llm"
	"village-assist/internal/logger"
	"village-assist/internal/otp"
	"village-assist/internal/queue"
	"village-assist/internal/retrieval"
	"village-assist/internal/sms"
	"village-assist/internal/speech"
	"village-assist/internal/store"
	"village-assist/internal/transcribe"
	"village-assist/internal/translate"
)

// Deps bundles the runtime dependencies shared by every service. It is built
// once at start and read-only afterwards.
type Deps struct {
	Config config.Config
	Log    *slog.Logger

	Store store.Store
	Queue queue.Queue
	Cache cache.Cache

	LLM       llm.Client
	Embedder  embeddings.Embedder // nil when EMBEDDING_PROVIDER=none
	Retriever retrieval.Retriever
	Templates answer.Templates
	Pipeline  *answer.Pipeline

	Speaker     *speech.Speaker        // nil when TTS_PROVIDER=none
	Transcriber transcribe.Transcriber // nil when STT_PROVIDER=none
	Translator  translate.Translator

	SMS sms.Sender
	OTP *otp.Service

	closers []func() error
}

// Build loads env, config, and shared components.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	log := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	deps, err := BuildWith(context.Background(), cfg, log)
	if err != nil {
		return Deps{}, err
	}
	return deps, nil
}

// BuildWith builds every component from cfg. On error, components already
// opened are closed.
func BuildWith(ctx context.Context, cfg config.Config, log *slog.Logger) (deps Deps, err error) {
	deps = Deps{Config: cfg, Log: log}
	if err := checkSecret(cfg); err != nil {
		return deps, err
	}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	if deps.Store, err = buildStore(cfg, log); err != nil {
		return deps, fmt.Errorf("failed to initialize store: %w", err)
	}
	deps.closers = append(deps.closers, deps.Store.Close)

	var nc *nats.Conn
	if deps.Queue, nc, err = buildQueue(cfg, log); err != nil {
		return deps, fmt.Errorf("failed to initialize queue: %w", err)
	}
	if nc != nil {
		deps.closers = append(deps.closers, func() error { nc.Close(); return nil })
	}

	deps.Cache = buildCache(cfg, log)
	deps.closers = append(deps.closers, deps.Cache.Close)

	if deps.LLM, err = buildLLM(ctx, cfg, log); err != nil {
		return deps, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	if deps.Embedder, err = buildEmbedder(ctx, cfg, log); err != nil {
		return deps, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	deps.Retriever = retrieval.None{}
	if deps.Embedder != nil {
		deps.Retriever = retrieval.NewStoreRetriever(deps.Embedder, deps.Store)
	}

	if deps.Templates, err = answer.LoadTemplates(cfg.PromptFile); err != nil {
		return deps, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	tmpl, err := deps.Templates.Lookup(cfg.PromptVariant)
	if err != nil {
		return deps, fmt.Errorf("invalid PROMPT_VARIANT: %w", err)
	}
	deps.Pipeline = answer.NewPipeline(answer.Config{
		Template:      tmpl,
		MinAnswerLen:  cfg.AnswerMinLen,
		MaxAnswerLen:  cfg.AnswerMaxLen,
		ContextMaxLen: cfg.ContextMaxLen,
		RetrievalK:    cfg.RetrievalK,
	}, deps.LLM, deps.Retriever, log)

	if deps.Speaker, err = buildSpeaker(cfg, tmpl, log); err != nil {
		return deps, fmt.Errorf("failed to initialize speech: %w", err)
	}
	deps.Transcriber = buildTranscriber(cfg, log)
	if deps.Translator, err = buildTranslator(cfg, log); err != nil {
		return deps, fmt.Errorf("failed to initialize translator: %w", err)
	}

	if deps.SMS, err = buildSMS(cfg, log); err != nil {
		return deps, fmt.Errorf("failed to initialize SMS: %w", err)
	}
	codes, err := buildCodeStore(cfg, log)
	if err != nil {
		return deps, fmt.Errorf("failed to initialize OTP store: %w", err)
	}
	if c, ok := codes.(*otp.RedisStore); ok {
		deps.closers = append(deps.closers, c.Close)
	}
	deps.OTP = otp.NewService(otp.Config{
		Length:            cfg.OTPLength,
		TTL:               seconds(cfg.OTPTTL),
		MaxPerWindow:      cfg.OTPMaxPerWindow,
		Window:            seconds(cfg.OTPWindow),
		MaxVerifyAttempts: cfg.OTPMaxVerify,
		Secret:            []byte(cfg.JWTSecret),
		TokenTTL:          seconds(cfg.JWTTTL),
	}, codes, deps.SMS, log)

	return deps, nil
}

// DefaultJWTSecret is the placeholder shipped in config; it is only accepted in dev mode.
const DefaultJWTSecret = "change-me"

func checkSecret(cfg config.Config) error {
	if cfg.DevMode {
		return nil
	}
	if s := strings.TrimSpace(cfg.JWTSecret); s == "" || s == DefaultJWTSecret {
		return errors.New("JWT_SECRET must be set to a non-default value (or DEV_MODE=true)")
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (d Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && d.Log != nil {
			d.Log.Warn("failed to close dependency", "err", err)
		}
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL, cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	case "sqlite":
		db, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		log.Info("using SQLite store", "path", cfg.SQLitePath)
		return db, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: postgres, sqlite)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, *nats.Conn, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL, nats.Name("village-assist"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nc, nil
	case "none":
		log.Info("using in-process queue")
		return queue.NewLocal(log), nil, nil
	default:
		return nil, nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: nats, none)", cfg.QueueProvider)
	}
}

// buildCache never fails: an unreachable Redis degrades to no caching.
func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis cache unavailable; caching disabled", "err", err)
			return cache.NewNoOpCache()
		}
		log.Info("using Redis answer cache", "addr", cfg.RedisAddr)
		return c
	case "memory":
		c, err := cache.NewMemoryCache(0)
		if err != nil {
			log.Warn("memory cache unavailable; caching disabled", "err", err)
			return cache.NewNoOpCache()
		}
		log.Info("using in-memory answer cache")
		return c
	default:
		return cache.NewNoOpCache()
	}
}

func llmOptions(cfg config.Config) llm.Options {
	return llm.Options{
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     seconds(cfg.InferenceTimeout),
	}
}

func buildLLM(ctx context.Context, cfg config.Config, log *slog.Logger) (llm.Client, error) {
	opts := llmOptions(cfg)
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(cfg.OpenAIKey, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiKey, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
		log.Info("using Gemini LLM client", "model", cfg.LLMModel)
		return client, nil
	case "ollama":
		log.Info("using Ollama LLM client", "url", cfg.OllamaURL, "model", cfg.LLMModel)
		return llm.NewOllamaClient(cfg.OllamaURL, cfg.OllamaNumCtx, cfg.OllamaRepeatPenalty, opts), nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: gemini, ollama, openai)", cfg.LLMProvider)
	}
}

func buildEmbedder(ctx context.Context, cfg config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
		embedder, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel), cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel)
		return embedder, nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when EMBEDDING_PROVIDER=gemini")
		}
		embedder, err := embeddings.NewGeminiEmbedder(ctx, cfg.GeminiKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini embedder: %w", err)
		}
		log.Info("using Gemini embedder", "model", cfg.EmbeddingModel)
		return embedder, nil
	case "ollama":
		log.Info("using Ollama embedder", "url", cfg.OllamaURL, "model", cfg.EmbeddingModel)
		return embeddings.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel), nil
	case "none", "":
		log.Info("retrieval disabled; answering without document context")
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid EMBEDDING_PROVIDER: %s (valid options: gemini, ollama, openai, none)", cfg.EmbeddingProvider)
	}
}

func buildSpeaker(cfg config.Config, tmpl answer.Template, log *slog.Logger) (*speech.Speaker, error) {
	var synth speech.Synthesizer
	switch cfg.TTSProvider {
	case "piper":
		synth = speech.NewPiper(cfg.PiperEndpoint, cfg.PiperVoice, log)
		log.Info("using Piper speech synthesis", "endpoint", cfg.PiperEndpoint)
	case "http":
		synth = speech.NewHTTPSynthesizer(cfg.TTSEndpoint, cfg.TTSToken, cfg.TTSAudioFormat, seconds(cfg.InferenceTimeout))
		log.Info("using HTTP speech synthesis", "endpoint", cfg.TTSEndpoint)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid TTS_PROVIDER: %s (valid options: piper, http, none)", cfg.TTSProvider)
	}
	return speech.NewSpeaker(synth, tmpl.Replies.SpeakFallback, tmpl.Language, log), nil
}

func buildTranscriber(cfg config.Config, log *slog.Logger) transcribe.Transcriber {
	if cfg.STTProvider != "whisper" {
		return nil
	}
	log.Info("using Whisper transcription", "url", cfg.WhisperURL, "type", cfg.WhisperType)
	return transcribe.NewWhisper(transcribe.Config{
		Endpoint: cfg.WhisperURL,
		Flavour:  cfg.WhisperType,
		Model:    cfg.WhisperModel,
		APIKey:   cfg.OpenAIKey,
		Timeout:  seconds(cfg.InferenceTimeout),
	}, log)
}

func buildTranslator(cfg config.Config, log *slog.Logger) (translate.Translator, error) {
	switch cfg.TranslateProvider {
	case "openrouter":
		t, err := translate.NewChatTranslator(cfg.TranslateURL, cfg.TranslateKey, cfg.TranslateModel, seconds(cfg.InferenceTimeout), log)
		if err != nil {
			return nil, err
		}
		log.Info("using chat translation", "url", cfg.TranslateURL, "model", cfg.TranslateModel)
		return t, nil
	case "none", "":
		return translate.Passthrough{}, nil
	default:
		return nil, fmt.Errorf("invalid TRANSLATE_PROVIDER: %s (valid options: openrouter, none)", cfg.TranslateProvider)
	}
}

func buildSMS(cfg config.Config, log *slog.Logger) (sms.Sender, error) {
	switch cfg.SMSProvider {
	case "fast2sms":
		s, err := sms.NewFast2SMS(cfg.Fast2SMSURL, cfg.Fast2SMSKey)
		if err != nil {
			return nil, err
		}
		log.Info("using Fast2SMS")
		return s, nil
	case "log", "":
		return sms.LogSender{Log: log}, nil
	default:
		return nil, fmt.Errorf("invalid SMS_PROVIDER: %s (valid options: fast2sms, log)", cfg.SMSProvider)
	}
}

func buildCodeStore(cfg config.Config, log *slog.Logger) (otp.CodeStore, error) {
	switch cfg.OTPStore {
	case "redis":
		s, err := otp.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		log.Info("using Redis OTP store", "addr", cfg.RedisAddr)
		return s, nil
	case "memory", "":
		return otp.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("invalid OTP_STORE: %s (valid options: redis, memory)", cfg.OTPStore)
	}
}
