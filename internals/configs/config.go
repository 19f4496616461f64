package configs

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"vulcan_backend/internals/helpers/logger"
)

var (
	JWTSecret        string
	JWTRefreshSecret string
)

// AppConfig is the process configuration. Business thresholds live in the
// policies table, not here.
type AppConfig struct {
	Port   string
	AppEnv string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSSLMode  string

	RedisURL string

	OSSEndpoint      string
	OSSAccessKey     string
	OSSSecretKey     string
	OSSSecurityToken string
	OSSBucket        string
	OSSPrefix        string
	TrashRetention   int
	TrashCron        string

	JWTSecret        string
	BlobSigningKey   string
	SignedRefTTL     time.Duration
	InboundEmailKey  string
	CORSAllowOrigins string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	WorkerCount       int
	WorkerQueueSize   int
	JobMaxAttempts    int
	MailPerSecond     float64
	RetryCron         string
	ReminderCron      string
	NotificationLimit int
}

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	log := logger.For("config")
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Warn().Msg(".env not found, using system environment")
		} else {
			log.Info().Msg(".env loaded")
		}
	}

	JWTSecret = GetEnv("JWT_SECRET")
	JWTRefreshSecret = GetEnv("JWT_REFRESH_SECRET")
	if JWTSecret == "" {
		log.Error().Msg("JWT_SECRET is not set")
	}
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if (!exists || value == "") && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func GetEnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func GetEnvFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func GetEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Load reads the process configuration from the environment (after LoadEnv).
func Load() AppConfig {
	return AppConfig{
		Port:   GetEnv("PORT", "3000"),
		AppEnv: GetEnv("APP_ENV", "production"),

		DBUser:     GetEnv("DB_USER"),
		DBPassword: GetEnv("DB_PASSWORD"),
		DBHost:     GetEnv("DB_HOST", "localhost"),
		DBPort:     GetEnv("DB_PORT", "5432"),
		DBName:     GetEnv("DB_NAME"),
		DBSSLMode:  GetEnv("DB_SSLMODE", "require"),

		RedisURL: GetEnv("REDIS_URL"),

		OSSEndpoint:      GetEnv("ALI_OSS_ENDPOINT"),
		OSSAccessKey:     GetEnv("ALI_OSS_ACCESS_KEY"),
		OSSSecretKey:     GetEnv("ALI_OSS_SECRET_KEY"),
		OSSSecurityToken: GetEnv("ALI_OSS_SECURITY_TOKEN"),
		OSSBucket:        GetEnv("ALI_OSS_BUCKET"),
		OSSPrefix:        GetEnv("ALI_OSS_PREFIX", "proofs"),
		TrashRetention:   GetEnvInt("RETENTION_DAYS", 30),
		TrashCron:        GetEnv("TRASH_CRON_SCHEDULE", "15 2 * * *"),

		JWTSecret:        GetEnv("JWT_SECRET"),
		BlobSigningKey:   GetEnv("BLOB_SIGNING_SECRET", GetEnv("JWT_SECRET")),
		SignedRefTTL:     time.Duration(GetEnvInt("SIGNED_REF_TTL_MINUTES", 30)) * time.Minute,
		InboundEmailKey:  GetEnv("INBOUND_EMAIL_KEY"),
		CORSAllowOrigins: GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),

		SMTPHost: GetEnv("SMTP_HOST"),
		SMTPPort: GetEnvInt("SMTP_PORT", 587),
		SMTPUser: GetEnv("SMTP_USER"),
		SMTPPass: GetEnv("SMTP_PASSWORD"),
		MailFrom: GetEnv("MAIL_FROM", "no-reply@vulcan.local"),

		WorkerCount:       GetEnvInt("WORKER_COUNT", 4),
		WorkerQueueSize:   GetEnvInt("WORKER_QUEUE_SIZE", 256),
		JobMaxAttempts:    GetEnvInt("JOB_MAX_ATTEMPTS", 5),
		MailPerSecond:     GetEnvFloat("MAIL_PER_SECOND", 5),
		RetryCron:         GetEnv("NOTIFICATION_RETRY_CRON", "*/5 * * * *"),
		ReminderCron:      GetEnv("REVIEW_REMINDER_CRON", "0 * * * *"),
		NotificationLimit: GetEnvInt("NOTIFICATION_RETRY_BATCH", 200),
	}
}

// =======================
// GORM LOGGER CUSTOM
// =======================
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormLogger.LogLevel
}

func NewGormLogger() gormLogger.Interface {
	level := gormLogger.Warn
	if GetEnvBool("DB_LOG_QUERIES", false) {
		level = gormLogger.Info
	}
	return &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      level,
	}
}

func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	cp := *l
	cp.LogLevel = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		logger.L().Info().Str("component", "gorm").Msgf(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		logger.L().Warn().Str("component", "gorm").Msgf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		logger.L().Error().Str("component", "gorm").Msgf(msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	ev := logger.L().With().Str("component", "gorm").Str("file", utils.FileWithLineNum()).
		Dur("elapsed", elapsed).Int64("rows", rows).Logger()

	switch {
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		ev.Error().Err(err).Msg(sql)
	case elapsed > l.SlowThreshold:
		ev.Warn().Msg("slow sql: " + sql)
	case l.LogLevel >= gormLogger.Info:
		ev.Debug().Msg(sql)
	}
}
