package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChildStatusTables(t *testing.T) {
	assert.True(t, VoucherIssued.CanTransitionTo(VoucherActive))
	assert.True(t, VoucherIssued.CanTransitionTo(VoucherCancelled))
	assert.False(t, VoucherIssued.CanTransitionTo(VoucherRedeemed))
	assert.False(t, VoucherRedeemed.CanTransitionTo(VoucherActive))

	assert.True(t, EvaluationConfirmed.CanTransitionTo(EvaluationCompleted))
	assert.False(t, EvaluationRequested.CanTransitionTo(EvaluationCompleted))

	assert.True(t, TrainingScheduled.CanTransitionTo(TrainingNoShow))
	assert.False(t, TrainingCompleted.CanTransitionTo(TrainingCancelled))
}

func TestGenerateVoucherCode(t *testing.T) {
	a, b := GenerateVoucherCode(), GenerateVoucherCode()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "0")
	assert.NotContains(t, a, "O")
}
