package model

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

type VoucherStatus string

const (
	VoucherIssued    VoucherStatus = "issued"
	VoucherActive    VoucherStatus = "active"
	VoucherRedeemed  VoucherStatus = "redeemed"
	VoucherExpired   VoucherStatus = "expired"
	VoucherCancelled VoucherStatus = "cancelled"
)

var voucherTransitions = map[VoucherStatus][]VoucherStatus{
	VoucherIssued: {VoucherActive, VoucherCancelled},
	VoucherActive: {VoucherRedeemed, VoucherExpired, VoucherCancelled},
}

func (s VoucherStatus) CanTransitionTo(to VoucherStatus) bool {
	return allowed(voucherTransitions[s], to)
}

// VoucherModel is the benefit issued to an approved application. At most one per application.
type VoucherModel struct {
	ID             uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:voucher_id" json:"voucher_id"`
	ApplicationID  uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uq_vouchers_application;column:voucher_application_id" json:"voucher_application_id"`
	Code           string        `gorm:"type:varchar(16);not null;uniqueIndex:uq_vouchers_code;column:voucher_code" json:"voucher_code"`
	Status         VoucherStatus `gorm:"type:varchar(16);not null;default:'issued';column:voucher_status" json:"voucher_status"`
	InitialValue   int           `gorm:"not null;column:voucher_initial_value" json:"voucher_initial_value"`
	RemainingValue int           `gorm:"not null;column:voucher_remaining_value" json:"voucher_remaining_value"`
	IssuedByID     *uuid.UUID    `gorm:"type:uuid;column:voucher_issued_by_id" json:"voucher_issued_by_id,omitempty"`
	IssuedAt       time.Time     `gorm:"type:timestamptz;not null;column:voucher_issued_at" json:"voucher_issued_at"`
	ExpiresAt      time.Time     `gorm:"type:timestamptz;not null;column:voucher_expires_at" json:"voucher_expires_at"`
	CreatedAt      time.Time     `gorm:"type:timestamptz;not null;autoCreateTime;column:voucher_created_at" json:"voucher_created_at"`
	UpdatedAt      time.Time     `gorm:"type:timestamptz;not null;autoUpdateTime;column:voucher_updated_at" json:"voucher_updated_at"`
}

func (VoucherModel) TableName() string { return "vouchers" }

// Unambiguous alphabet: no 0/O, 1/I/L.
const voucherAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateVoucherCode returns a random 12 character code.
func GenerateVoucherCode() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	var sb strings.Builder
	for _, c := range b {
		sb.WriteByte(voucherAlphabet[int(c)%len(voucherAlphabet)])
	}
	return sb.String()
}

func allowed[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
