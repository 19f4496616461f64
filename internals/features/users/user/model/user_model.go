package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"vulcan_backend/internals/constants"
	"vulcan_backend/internals/helpers/apperr"
)

var validate = apperr.NewValidator()

// UserModel is a person acting on applications: constituent, guardian, staff or vendor.
type UserModel struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FirstName string    `gorm:"size:100;not null" json:"first_name" validate:"required,max=100"`
	LastName  string    `gorm:"size:100;not null;default:''" json:"last_name" validate:"max=100"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email" validate:"required,email"`
	Role      string    `gorm:"type:varchar(20);not null;default:'constituent'" json:"role" validate:"required,oneof=constituent admin evaluator trainer vendor system"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserModel) TableName() string {
	return "users"
}

func (u *UserModel) SetDefaultValues() {
	if u.Role == "" {
		u.Role = constants.RoleConstituent
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

func (u *UserModel) Validate() error {
	u.SetDefaultValues()
	if err := validate.Struct(u); err != nil {
		return apperr.FromValidator(err)
	}
	return nil
}

func (u *UserModel) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *UserModel) HasRole(role string) bool { return u != nil && u.Role == role }

func (u *UserModel) IsAdmin() bool { return u.HasRole(constants.RoleAdmin) }
