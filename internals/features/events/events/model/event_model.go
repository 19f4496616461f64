package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SubjectApplication      = "Application"
	SubjectApplicationBatch = "ApplicationBatch"
	SubjectVoucher          = "Voucher"
)

// Event is a generic, immutable audit fact. Subjects are referenced weakly.
type EventModel struct {
	ID          uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:event_id" json:"event_id"`
	ActorID     *uuid.UUID        `gorm:"type:uuid;column:event_actor_id" json:"event_actor_id,omitempty"`
	Action      string            `gorm:"type:varchar(100);not null;column:event_action;index:idx_events_subject_action,priority:3" json:"event_action"`
	SubjectType string            `gorm:"type:varchar(60);not null;column:event_subject_type;index:idx_events_subject_action,priority:1" json:"event_subject_type"`
	SubjectID   *uuid.UUID        `gorm:"type:uuid;column:event_subject_id;index:idx_events_subject_action,priority:2" json:"event_subject_id,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}';column:event_metadata" json:"event_metadata"`
	CreatedAt   time.Time         `gorm:"type:timestamptz;not null;autoCreateTime;column:event_created_at" json:"event_created_at"`
}

func (EventModel) TableName() string { return "events" }
