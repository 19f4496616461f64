package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vulcan_backend/internals/configs"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	assignModel "vulcan_backend/internals/features/applications/assignments/model"
	eventModel "vulcan_backend/internals/features/events/events/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	policyModel "vulcan_backend/internals/features/policies/policies/model"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/logger"
)

// DSN builds the postgres URL. statement_timeout keeps slow queries from
// outliving the HTTP timeout.
func DSN(cfg configs.AppConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:   cfg.DBHost + ":" + cfg.DBPort,
		Path:   "/" + cfg.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", cfg.DBSSLMode)
	q.Set("application_name", "vulcan")
	q.Set("options", "-c statement_timeout=5000")
	u.RawQuery = q.Encode()
	return u.String()
}

func ConnectDB(cfg configs.AppConfig) (*gorm.DB, error) {
	log := logger.For("database")
	log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("connecting to postgres")

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  DSN(cfg),
		PreferSimpleProtocol: true, // PgBouncer transaction pooling
	}), &gorm.Config{Logger: configs.NewGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	log.Info().Msg("db connected")
	return db, nil
}

func TunePool(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log := logger.For("database")
		log.Warn().Err(err).Msg("pool tune skipped")
		return
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&userModel.UserModel{},
		&appModel.ApplicationModel{},
		&appModel.ProofSubmissionAuditModel{},
		&appModel.ProofReviewModel{},
		&appModel.ApplicationStatusChangeModel{},
		&eventModel.EventModel{},
		&notifModel.NotificationModel{},
		&notifModel.EmailTemplateModel{},
		&assignModel.VoucherModel{},
		&assignModel.EvaluationModel{},
		&assignModel.TrainingSessionModel{},
		&policyModel.PolicyModel{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
