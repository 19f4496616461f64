package service

import notifModel "vulcan_backend/internals/features/notifications/notifications/model"

// Mailer names registered on the service.
const (
	MailerApplication = "application"
	MailerAdmin       = "admin"
	MailerAssignment  = "assignment"
)

type MailerRoute struct {
	Mailer   string
	Template string
}

// MailerFor routes an action to a mailer and template. Actions without a
// route are in-app only and stay pending.
func MailerFor(action notifModel.Action) (MailerRoute, bool) {
	switch action {
	case notifModel.ActionProofApproved,
		notifModel.ActionProofRejected,
		notifModel.ActionApplicationApproved,
		notifModel.ActionApplicationRejected,
		notifModel.ActionDocumentsRequested,
		notifModel.ActionMedicalCertificationRequested,
		notifModel.ActionMedicalCertificationReceived,
		notifModel.ActionMedicalCertificationApproved,
		notifModel.ActionMedicalCertificationRejected,
		notifModel.ActionVoucherAssigned:
		return MailerRoute{Mailer: MailerApplication, Template: string(action)}, true
	case notifModel.ActionProofNeedsReview, notifModel.ActionProofReviewOverdue:
		return MailerRoute{Mailer: MailerAdmin, Template: string(action)}, true
	case notifModel.ActionEvaluatorAssigned, notifModel.ActionTrainerAssigned:
		return MailerRoute{Mailer: MailerAssignment, Template: string(action)}, true
	default:
		return MailerRoute{}, false
	}
}
