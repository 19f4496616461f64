package model

import (
	"time"

	"github.com/google/uuid"
)

type EvaluationStatus string

const (
	EvaluationRequested EvaluationStatus = "requested"
	EvaluationScheduled EvaluationStatus = "scheduled"
	EvaluationConfirmed EvaluationStatus = "confirmed"
	EvaluationCompleted EvaluationStatus = "completed"
	EvaluationCancelled EvaluationStatus = "cancelled"
)

var evaluationTransitions = map[EvaluationStatus][]EvaluationStatus{
	EvaluationRequested: {EvaluationScheduled, EvaluationCancelled},
	EvaluationScheduled: {EvaluationConfirmed, EvaluationCancelled},
	EvaluationConfirmed: {EvaluationCompleted},
}

func (s EvaluationStatus) CanTransitionTo(to EvaluationStatus) bool {
	return allowed(evaluationTransitions[s], to)
}

type EvaluationModel struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:evaluation_id" json:"evaluation_id"`
	ApplicationID uuid.UUID        `gorm:"type:uuid;not null;index;column:evaluation_application_id" json:"evaluation_application_id"`
	EvaluatorID   uuid.UUID        `gorm:"type:uuid;not null;index;column:evaluation_evaluator_id" json:"evaluation_evaluator_id"`
	ConstituentID uuid.UUID        `gorm:"type:uuid;not null;column:evaluation_constituent_id" json:"evaluation_constituent_id"`
	AssignedByID  *uuid.UUID       `gorm:"type:uuid;column:evaluation_assigned_by_id" json:"evaluation_assigned_by_id,omitempty"`
	Status        EvaluationStatus `gorm:"type:varchar(16);not null;default:'requested';column:evaluation_status" json:"evaluation_status"`
	ScheduledFor  *time.Time       `gorm:"type:timestamptz;column:evaluation_scheduled_for" json:"evaluation_scheduled_for,omitempty"`
	CreatedAt     time.Time        `gorm:"type:timestamptz;not null;autoCreateTime;column:evaluation_created_at" json:"evaluation_created_at"`
	UpdatedAt     time.Time        `gorm:"type:timestamptz;not null;autoUpdateTime;column:evaluation_updated_at" json:"evaluation_updated_at"`
}

func (EvaluationModel) TableName() string { return "evaluations" }

type TrainingSessionStatus string

const (
	TrainingRequested TrainingSessionStatus = "requested"
	TrainingScheduled TrainingSessionStatus = "scheduled"
	TrainingCompleted TrainingSessionStatus = "completed"
	TrainingCancelled TrainingSessionStatus = "cancelled"
	TrainingNoShow    TrainingSessionStatus = "no_show"
)

var trainingTransitions = map[TrainingSessionStatus][]TrainingSessionStatus{
	TrainingRequested: {TrainingScheduled, TrainingCancelled},
	TrainingScheduled: {TrainingCompleted, TrainingCancelled, TrainingNoShow},
}

func (s TrainingSessionStatus) CanTransitionTo(to TrainingSessionStatus) bool {
	return allowed(trainingTransitions[s], to)
}

type TrainingSessionModel struct {
	ID            uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey;column:training_session_id" json:"training_session_id"`
	ApplicationID uuid.UUID             `gorm:"type:uuid;not null;index;column:training_session_application_id" json:"training_session_application_id"`
	TrainerID     uuid.UUID             `gorm:"type:uuid;not null;index;column:training_session_trainer_id" json:"training_session_trainer_id"`
	ConstituentID uuid.UUID             `gorm:"type:uuid;not null;column:training_session_constituent_id" json:"training_session_constituent_id"`
	AssignedByID  *uuid.UUID            `gorm:"type:uuid;column:training_session_assigned_by_id" json:"training_session_assigned_by_id,omitempty"`
	Status        TrainingSessionStatus `gorm:"type:varchar(16);not null;default:'requested';column:training_session_status" json:"training_session_status"`
	ScheduledFor  *time.Time            `gorm:"type:timestamptz;column:training_session_scheduled_for" json:"training_session_scheduled_for,omitempty"`
	CreatedAt     time.Time             `gorm:"type:timestamptz;not null;autoCreateTime;column:training_session_created_at" json:"training_session_created_at"`
	UpdatedAt     time.Time             `gorm:"type:timestamptz;not null;autoUpdateTime;column:training_session_updated_at" json:"training_session_updated_at"`
}

func (TrainingSessionModel) TableName() string { return "training_sessions" }
