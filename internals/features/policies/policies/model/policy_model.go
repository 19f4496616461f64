package model

import "time"

// PolicyModel is one integer business setting, e.g. proof_submission_rate_limit_web.
type PolicyModel struct {
	Key       string    `gorm:"type:varchar(120);primaryKey;column:policy_key" json:"policy_key"`
	Value     int       `gorm:"not null;column:policy_value" json:"policy_value"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;column:policy_updated_at" json:"policy_updated_at"`
}

func (PolicyModel) TableName() string { return "policies" }

// Known policy keys.
const (
	KeyProofMinSizeBytes           = "proof_min_size_bytes"
	KeyProofMaxSizeBytes           = "proof_max_size_bytes"
	KeyProofReviewGraceSeconds     = "proof_review_grace_seconds"
	KeyProofReviewReminderHours    = "proof_review_reminder_hours"
	KeyVoucherInitialValue         = "voucher_initial_value"
	KeyVoucherValidityPeriodMonths = "voucher_validity_period_months"
	KeyNotificationMaxAttempts     = "notification_max_attempts"
)
