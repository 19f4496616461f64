package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	userModel "vulcan_backend/internals/features/users/user/model"
)

func TestComposer_KnownActions(t *testing.T) {
	app := appModel.ApplicationModel{ID: uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")}
	admin := &userModel.UserModel{FirstName: "Ada", LastName: "Admin"}
	c := Composer{}

	assert.Equal(t, "Your application #1b4e28ba has been approved.",
		c.Generate(notifModel.ActionApplicationApproved, app, admin, nil))
	assert.Equal(t, "Your residency proof for application #1b4e28ba was rejected: address_mismatch.",
		c.Generate(notifModel.ActionProofRejected, app, admin, map[string]any{"proof_type": "residency", "reason": "address_mismatch"}))
	assert.Equal(t, "Ada Admin removed the proof documents on application #1b4e28ba.",
		c.Generate(notifModel.ActionProofsPurged, app, admin, nil))
	assert.Equal(t, "A constituent submitted a income proof for application #1b4e28ba that needs review.",
		c.Generate(notifModel.ActionProofNeedsReview, app, nil, map[string]any{"proof_type": "income"}))
}

func TestComposer_UnknownActionAndNilNotifiable(t *testing.T) {
	c := Composer{}
	app := appModel.ApplicationModel{ID: uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")}

	assert.Equal(t, "Income verification overdue notification regarding application #1b4e28ba.",
		c.Generate(notifModel.Action("income_verification_overdue"), app, nil, nil))
	assert.Equal(t, "Custom notification regarding .",
		c.Generate(notifModel.Action("custom"), nil, nil, nil))

	var missing *appModel.ApplicationModel
	assert.NotPanics(t, func() {
		assert.Equal(t, "Your  has been approved.", c.Generate(notifModel.ActionApplicationApproved, missing, nil, nil))
	})
}

func TestMailerFor_DefaultArm(t *testing.T) {
	route, ok := MailerFor(notifModel.ActionEvaluatorAssigned)
	assert.True(t, ok)
	assert.Equal(t, MailerAssignment, route.Mailer)
	assert.Equal(t, "evaluator_assigned", route.Template)

	_, ok = MailerFor(notifModel.ActionProofsPurged)
	assert.False(t, ok)
	_, ok = MailerFor(notifModel.Action("never_heard_of_it"))
	assert.False(t, ok)
}

func TestInterpolate(t *testing.T) {
	out, err := Interpolate("Hello %<user_first_name>s, %<message>s", map[string]string{"user_first_name": "Jo", "message": "done"})
	assert.NoError(t, err)
	assert.Equal(t, "Hello Jo, done", out)

	_, err = Interpolate("Hi %<b>s %<a>s", map[string]string{})
	assert.EqualError(t, err, "template variables missing: a, b")
}
