package config

import (
	"log/slog"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration shared by all services.
type Config struct {
	// Server
	Port      int    `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "text"
	// DevMode relaxes production checks such as the default JWT secret
	DevMode bool `env:"DEV_MODE" envDefault:"false"`
	// Health endpoint of the queue workers
	HealthPort int `env:"HEALTH_PORT" envDefault:"8090"`
	// Public base URL used to build audio links; empty yields relative links
	PublicURL string `env:"PUBLIC_URL"`

	// Upload limits and local directories
	MaxUploadSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes
	UploadDir     string `env:"UPLOAD_DIR" envDefault:"uploads"`
	TTSDir        string `env:"TTS_DIR" envDefault:"tts"`
	DocsDir       string `env:"DOCS_DIR"` // watched by the ingest worker when set

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"sqlite"` // "sqlite" or "postgres"
	DBURL         string `env:"DB_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data.db"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"nats"` // "nats" or "none"
	QueueURL      string `env:"QUEUE_URL"`

	// Inference
	LLMProvider         string  `env:"LLM_PROVIDER" envDefault:"ollama"` // "gemini", "ollama" or "openai"
	LLMModel            string  `env:"LLM_MODEL"`
	LLMTemperature      float64 `env:"LLM_TEMPERATURE" envDefault:"0.2"`
	LLMMaxTokens        int     `env:"LLM_MAX_TOKENS" envDefault:"400"`
	InferenceTimeout    int     `env:"INFERENCE_TIMEOUT" envDefault:"120"` // seconds
	OpenAIKey           string  `env:"OPENAI_API_KEY"`
	GeminiKey           string  `env:"GEMINI_API_KEY"`
	OllamaURL           string  `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaNumCtx        int     `env:"OLLAMA_NUM_CTX" envDefault:"4096"`
	OllamaRepeatPenalty float64 `env:"OLLAMA_REPEAT_PENALTY" envDefault:"1.5"`

	// Retrieval
	EmbeddingProvider string `env:"EMBEDDING_PROVIDER" envDefault:"none"` // "openai", "ollama", "gemini" or "none"
	EmbeddingModel    string `env:"EMBEDDING_MODEL"`
	EmbeddingDim      int    `env:"EMBEDDING_DIM" envDefault:"768"`
	RetrievalK        int    `env:"RETRIEVAL_K" envDefault:"2"`

	// Answer pipeline
	PromptVariant     string `env:"PROMPT_VARIANT" envDefault:"telugu"`
	PromptFile        string `env:"PROMPT_TEMPLATES_FILE"`
	AnswerMinLen      int    `env:"ANSWER_MIN_LEN" envDefault:"5"`
	AnswerMaxLen      int    `env:"ANSWER_MAX_LEN" envDefault:"700"`
	ContextMaxLen     int    `env:"CONTEXT_MAX_LEN" envDefault:"1200"`

	// Speech
	TTSProvider    string `env:"TTS_PROVIDER" envDefault:"none"` // "piper", "http" or "none"
	PiperEndpoint  string `env:"PIPER_ENDPOINT" envDefault:"localhost:10200"`
	PiperVoice     string `env:"PIPER_VOICE"`
	TTSEndpoint    string `env:"TTS_ENDPOINT" envDefault:"https://api-inference.huggingface.co/models/facebook/mms-tts-tel"`
	TTSToken       string `env:"TTS_TOKEN"`
	TTSAudioFormat string `env:"TTS_AUDIO_FORMAT" envDefault:"wav"`
	STTProvider    string `env:"STT_PROVIDER" envDefault:"none"` // "whisper" or "none"
	WhisperURL     string `env:"WHISPER_URL" envDefault:"http://localhost:8000/v1/audio/transcriptions"`
	WhisperType    string `env:"WHISPER_TYPE" envDefault:"openai"` // "openai" or "asr"
	WhisperModel   string `env:"WHISPER_MODEL" envDefault:"small"`

	// Translation
	TranslateProvider string `env:"TRANSLATE_PROVIDER" envDefault:"none"` // "openrouter" or "none"
	TranslateURL      string `env:"TRANSLATE_URL" envDefault:"https://openrouter.ai/api/v1"`
	TranslateKey      string `env:"OPENROUTER_API_KEY"`
	TranslateModel    string `env:"TRANSLATE_MODEL" envDefault:"openai/gpt-4o-mini"`

	// Cache
	CacheProvider string `env:"CACHE_PROVIDER" envDefault:"none"` // "redis", "memory" or "none"
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600"` // seconds

	// OTP and SMS
	OTPStore         string `env:"OTP_STORE" envDefault:"memory"` // "redis" or "memory"
	OTPLength        int    `env:"OTP_LENGTH" envDefault:"4"`
	OTPTTL           int    `env:"OTP_TTL" envDefault:"300"`          // seconds
	OTPMaxPerWindow  int    `env:"OTP_MAX_PER_WINDOW" envDefault:"3"` // issues per number per window
	OTPWindow        int    `env:"OTP_WINDOW" envDefault:"600"`       // seconds
	OTPMaxVerify     int    `env:"OTP_MAX_VERIFY_ATTEMPTS" envDefault:"5"`
	JWTSecret        string `env:"JWT_SECRET" envDefault:"change-me"`
	JWTTTL           int    `env:"JWT_TTL" envDefault:"86400"` // seconds
	SMSProvider      string `env:"SMS_PROVIDER" envDefault:"log"` // "fast2sms" or "log"
	Fast2SMSKey      string `env:"FAST2SMS_API_KEY"`
	Fast2SMSURL      string `env:"FAST2SMS_URL" envDefault:"https://www.fast2sms.com/dev/bulkV2"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
