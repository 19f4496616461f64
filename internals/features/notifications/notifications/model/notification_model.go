package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryError   DeliveryStatus = "error"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelNone  Channel = "none"
)

// Metadata keys written by the notification service.
const (
	MetaMessage      = "message"
	MetaChannel      = "channel"
	MetaAttempts     = "attempts"
	MetaErrorMessage = "error_message"
	MetaMessageID    = "message_id"
	MetaDeliveredAt  = "delivered_at"
	MetaTemplate     = "template"
)

// Notification is created once; only its delivery status, metadata and read_at change.
type NotificationModel struct {
	ID             uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:notification_id" json:"notification_id"`
	RecipientID    uuid.UUID         `gorm:"type:uuid;not null;index;column:notification_recipient_id" json:"notification_recipient_id"`
	ActorID        *uuid.UUID        `gorm:"type:uuid;column:notification_actor_id" json:"notification_actor_id,omitempty"`
	Action         Action            `gorm:"type:varchar(100);not null;column:notification_action" json:"notification_action"`
	NotifiableType string            `gorm:"type:varchar(60);column:notification_notifiable_type;index:idx_notifications_notifiable,priority:1" json:"notification_notifiable_type,omitempty"`
	NotifiableID   *uuid.UUID        `gorm:"type:uuid;column:notification_notifiable_id;index:idx_notifications_notifiable,priority:2" json:"notification_notifiable_id,omitempty"`
	DeliveryStatus DeliveryStatus    `gorm:"type:varchar(16);not null;default:'pending';index;column:notification_delivery_status" json:"notification_delivery_status"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}';column:notification_metadata" json:"notification_metadata"`
	ReadAt         *time.Time        `gorm:"type:timestamptz;column:notification_read_at" json:"notification_read_at,omitempty"`
	CreatedAt      time.Time         `gorm:"type:timestamptz;not null;autoCreateTime;column:notification_created_at" json:"notification_created_at"`
	UpdatedAt      time.Time         `gorm:"type:timestamptz;not null;autoUpdateTime;column:notification_updated_at" json:"notification_updated_at"`
}

func (NotificationModel) TableName() string { return "notifications" }

func (n *NotificationModel) Message() string {
	if s, ok := n.Metadata[MetaMessage].(string); ok {
		return s
	}
	return ""
}

// Attempts reads the attempt counter; JSON round trips turn ints into float64.
func (n *NotificationModel) Attempts() int {
	switch v := n.Metadata[MetaAttempts].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// EmailTemplate holds a subject and body with %<name>s placeholders.
type EmailTemplateModel struct {
	Name        string    `gorm:"type:varchar(120);primaryKey;column:email_template_name" json:"email_template_name"`
	Subject     string    `gorm:"type:text;not null;column:email_template_subject" json:"email_template_subject"`
	Body        string    `gorm:"type:text;not null;column:email_template_body" json:"email_template_body"`
	Format      string    `gorm:"type:varchar(10);not null;default:'text';column:email_template_format" json:"email_template_format"`
	Description string    `gorm:"type:text;column:email_template_description" json:"email_template_description,omitempty"`
	Version     int       `gorm:"not null;default:1;column:email_template_version" json:"email_template_version"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime;column:email_template_updated_at" json:"email_template_updated_at"`
}

func (EmailTemplateModel) TableName() string { return "email_templates" }
