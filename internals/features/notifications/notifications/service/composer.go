package service

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	userModel "vulcan_backend/internals/features/users/user/model"
)

// Notifiable is the subject a notification refers to.
type Notifiable interface {
	NotifiableType() string
	NotifiableID() uuid.UUID
	DisplayName() string
}

// Composer renders the human sentence stored on a notification. It never fails.
type Composer struct{}

func (Composer) Generate(action notifModel.Action, notifiable Notifiable, actor *userModel.UserModel, ctx map[string]any) string {
	id := identifier(notifiable)
	who := actorName(actor)
	proof := str(ctx, "proof_type")
	reason := withReason(str(ctx, "reason"))

	switch action {
	case notifModel.ActionProofApproved:
		return fmt.Sprintf("Your %s proof for %s was approved.", proof, id)
	case notifModel.ActionProofRejected:
		return fmt.Sprintf("Your %s proof for %s was rejected%s.", proof, id, reason)
	case notifModel.ActionProofNeedsReview:
		return fmt.Sprintf("%s submitted a %s proof for %s that needs review.", orDefault(who, "A constituent"), proof, id)
	case notifModel.ActionProofReviewOverdue:
		return fmt.Sprintf("Proofs for %s have been waiting for review for more than %s hours.", id, orDefault(str(ctx, "hours"), "72"))
	case notifModel.ActionProofsPurged:
		return fmt.Sprintf("%s removed the proof documents on %s.", orDefault(who, "An administrator"), id)
	case notifModel.ActionApplicationApproved:
		return fmt.Sprintf("Your %s has been approved.", id)
	case notifModel.ActionApplicationRejected:
		return fmt.Sprintf("Your %s was rejected%s.", id, reason)
	case notifModel.ActionDocumentsRequested:
		return fmt.Sprintf("Additional documents are needed for your %s.", id)
	case notifModel.ActionMedicalCertificationRequested:
		return fmt.Sprintf("A medical certification was requested for %s.", id)
	case notifModel.ActionMedicalCertificationReceived:
		return fmt.Sprintf("The medical certification for %s was received.", id)
	case notifModel.ActionMedicalCertificationApproved:
		return fmt.Sprintf("The medical certification for %s was approved.", id)
	case notifModel.ActionMedicalCertificationRejected:
		return fmt.Sprintf("The medical certification for %s was rejected%s.", id, reason)
	case notifModel.ActionEvaluatorAssigned:
		return fmt.Sprintf("%s was assigned to evaluate %s.", orDefault(str(ctx, "assignee_name"), "An evaluator"), id)
	case notifModel.ActionTrainerAssigned:
		return fmt.Sprintf("%s was assigned to train %s.", orDefault(str(ctx, "assignee_name"), "A trainer"), id)
	case notifModel.ActionVoucherAssigned:
		return fmt.Sprintf("Voucher %s was issued for %s.", str(ctx, "voucher_code"), id)
	default:
		return fmt.Sprintf("%s notification regarding %s.", humanize(string(action)), id)
	}
}

// humanize turns proof_needs_more_info into "Proof needs more info".
func humanize(action string) string {
	words := strings.Fields(strings.ReplaceAll(action, "_", " "))
	if len(words) == 0 {
		return ""
	}
	words[0] = cases.Title(language.English).String(words[0])
	return strings.Join(words, " ")
}

func identifier(n Notifiable) string {
	if n == nil {
		return ""
	}
	if v := reflect.ValueOf(n); v.Kind() == reflect.Ptr && v.IsNil() {
		return ""
	}
	return n.DisplayName()
}

func actorName(u *userModel.UserModel) string {
	return u.FullName()
}

func str(ctx map[string]any, key string) string {
	v, ok := ctx[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func withReason(r string) string {
	if strings.TrimSpace(r) == "" {
		return ""
	}
	return ": " + r
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
