package dto

import "github.com/google/uuid"

type AssignStaffRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}
