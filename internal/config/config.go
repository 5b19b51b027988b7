package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Keys      APIKeys
	Ai        AIConfig
	Pipeline  PipelineConfig
	Retrieval RetrievalConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	EventBus           string // "nats" or "memory"
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type APIKeys struct {
	GoogleGemini string
	Jina         string
	OpenAI       string
	Anthropic    string
	HuggingFace  string
}

type AIConfig struct {
	VisionProvider    string // "ollama", "openai", "anthropic"
	VisionModel       string
	AnswerProvider    string
	AnswerModel       string
	EmbeddingProvider string // "ollama", "gemini", "jina", "openai"
	EmbeddingModel    string
	EmbeddingDim      int
	OllamaBaseURL     string
	OpenAIBaseURL     string
}

type PipelineConfig struct {
	PreviewMaxEdge int
	PreviewMaxPix  int
	PreviewPrefix  string
	JpegQuality    int
	StageTimeout   time.Duration
	ChunkTokens    int
	ChunkOverlap   int
	MaxUploadBytes int
}

type RetrievalConfig struct {
	BM25K1               float64
	BM25B                float64
	FusionK              float64
	OverFetch            int
	AdaptiveMinResults   int
	AdaptiveKeywordScore float64
	AdaptiveVectorScore  float64
	KeywordIndexTTL      time.Duration
	QueryEmbeddingTTL    time.Duration
	SearchTimeout        time.Duration
	DefaultTopK          int
	MaxTopK              int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			EventBus:           getEnv("EVENT_BUS", "nats"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "visual-search"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			Anthropic:    getEnv("ANTHROPIC_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Ai: AIConfig{
			VisionProvider:    getEnv("VISION_PROVIDER", "ollama"),
			VisionModel:       getEnv("VISION_MODEL", "llava"),
			AnswerProvider:    getEnv("LLM_PROVIDER", "ollama"),
			AnswerModel:       getEnv("LLM_MODEL", "llama3"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingDim:      getEnvAsInt("EMBEDDING_DIM", 768),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		},
		Pipeline: PipelineConfig{
			PreviewMaxEdge: getEnvAsInt("PREVIEW_MAX_EDGE", 1024),
			PreviewMaxPix:  getEnvAsInt("PREVIEW_MAX_PIXELS", 50_000_000),
			PreviewPrefix:  getEnv("PREVIEW_PREFIX", "previews/"),
			JpegQuality:    getEnvAsInt("PREVIEW_JPEG_QUALITY", 85),
			StageTimeout:   getEnvAsDuration("STAGE_TIMEOUT", 2*time.Minute),
			ChunkTokens:    getEnvAsInt("CHUNK_TOKENS", 256),
			ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 32),
			MaxUploadBytes: getEnvAsInt("MAX_UPLOAD_BYTES", 20*1024*1024),
		},
		Retrieval: RetrievalConfig{
			BM25K1:               getEnvAsFloat("BM25_K1", 1.2),
			BM25B:                getEnvAsFloat("BM25_B", 0.75),
			FusionK:              getEnvAsFloat("RRF_K", 60),
			OverFetch:            getEnvAsInt("RETRIEVAL_OVERFETCH", 20),
			AdaptiveMinResults:   getEnvAsInt("ADAPTIVE_MIN_RESULTS", 3),
			AdaptiveKeywordScore: getEnvAsFloat("ADAPTIVE_KEYWORD_SCORE", 1.0),
			AdaptiveVectorScore:  getEnvAsFloat("ADAPTIVE_VECTOR_SCORE", 0.5),
			KeywordIndexTTL:      getEnvAsDuration("KEYWORD_INDEX_TTL", 30*time.Second),
			QueryEmbeddingTTL:    getEnvAsDuration("QUERY_EMBEDDING_TTL", time.Hour),
			SearchTimeout:        getEnvAsDuration("SEARCH_TIMEOUT", 30*time.Second),
			DefaultTopK:          getEnvAsInt("SEARCH_DEFAULT_TOP_K", 10),
			MaxTopK:              getEnvAsInt("SEARCH_MAX_TOP_K", 50),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
