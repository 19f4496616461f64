package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vulcan_backend/internals/constants"
	appModel "vulcan_backend/internals/features/applications/applications/model"
	"vulcan_backend/internals/features/applications/repository"
	eventModel "vulcan_backend/internals/features/events/events/model"
	eventSvc "vulcan_backend/internals/features/events/events/service"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/dbtime"
	helperOSS "vulcan_backend/internals/helpers/oss"
	"vulcan_backend/internals/jobs"
)

type fixture struct {
	store  *repository.MemoryStore
	blobs  *helperOSS.MemoryBlobStore
	clock  *dbtime.FakeClock
	queue  *jobs.ManualQueue
	signer *helperOSS.RefSigner
	apps   *ApplicationService
	proofs *ProofAttachmentService
	owner  *userModel.UserModel
	admin  *userModel.UserModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := dbtime.NewFakeClock(time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clock.Clock())
	blobs := helperOSS.NewMemoryBlobStore(clock.Clock())
	queue := &jobs.ManualQueue{}
	policies := policySvc.NewStaticStore(nil)
	mailer := &notifSvc.MockMailer{}

	notifier := notifSvc.NewNotificationService(store, queue, policies, map[string]notifSvc.Mailer{
		notifSvc.MailerApplication: mailer,
		notifSvc.MailerAdmin:       mailer,
		notifSvc.MailerAssignment:  mailer,
	})
	notifier.Clock = clock.Clock()

	apps := NewApplicationService(store, eventSvc.NewRecorder(store), notifier)
	apps.Clock = clock.Clock()
	signer := helperOSS.NewRefSigner("test-secret", clock.Now)
	proofs := NewProofAttachmentService(store, blobs, signer, policies, apps, queue)

	return &fixture{
		store:  store,
		blobs:  blobs,
		clock:  clock,
		queue:  queue,
		signer: signer,
		apps:   apps,
		proofs: proofs,
		owner:  store.PutUser(&userModel.UserModel{FirstName: "Rosa", LastName: "Diaz", Email: "rosa@example.org", IsActive: true}),
		admin:  store.PutUser(&userModel.UserModel{FirstName: "Ada", Email: "ada@example.org", Role: constants.RoleAdmin, IsActive: true}),
	}
}

func (f *fixture) newApplication(t *testing.T, status appModel.ApplicationStatus, mutate ...func(*appModel.ApplicationModel)) *appModel.ApplicationModel {
	t.Helper()
	app := &appModel.ApplicationModel{UserID: f.owner.ID, Status: status}
	for _, m := range mutate {
		m(app)
	}
	require.NoError(t, f.store.CreateApplication(context.Background(), app))
	return app
}

func (f *fixture) reload(t *testing.T, app *appModel.ApplicationModel) *appModel.ApplicationModel {
	t.Helper()
	fresh, err := f.store.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	return fresh
}

func (f *fixture) eventsNamed(action string) []eventModel.EventModel {
	var out []eventModel.EventModel
	for _, e := range f.store.AllEvents() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) notificationsNamed(action notifModel.Action) []notifModel.NotificationModel {
	var out []notifModel.NotificationModel
	for _, n := range f.store.AllNotifications() {
		if n.Action == action {
			out = append(out, n)
		}
	}
	return out
}

func pdfBody(size int) []byte {
	head := []byte("%PDF-1.4\n")
	return append(head, bytes.Repeat([]byte("x"), size-len(head))...)
}

func pdfUpload(name string) helperOSS.FileInput {
	return helperOSS.FileInput{Upload: &helperOSS.Upload{
		Filename:    name,
		ContentType: "application/pdf",
		Body:        bytes.NewReader(pdfBody(4096)),
	}}
}

func attached(key string, at time.Time) appModel.Attachment {
	ct := "application/pdf"
	name := key[strings.LastIndex(key, "/")+1:]
	return appModel.Attachment{BlobKey: &key, Filename: &name, ContentType: &ct, ByteSize: 4096, AttachedAt: &at}
}
