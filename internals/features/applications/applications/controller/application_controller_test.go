package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	appSvc "vulcan_backend/internals/features/applications/applications/service"
	"vulcan_backend/internals/features/applications/repository"
	eventSvc "vulcan_backend/internals/features/events/events/service"
	notifSvc "vulcan_backend/internals/features/notifications/notifications/service"
	policySvc "vulcan_backend/internals/features/policies/policies/service"
	rlSvc "vulcan_backend/internals/features/policies/rate_limits/service"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/dbtime"
	helperAuth "vulcan_backend/internals/helpers/auth"
	helperOSS "vulcan_backend/internals/helpers/oss"
	"vulcan_backend/internals/jobs"
)

const testUserHeader = "X-Test-User"

type harness struct {
	app      *fiber.App
	store    *repository.MemoryStore
	owner    *userModel.UserModel
	stranger *userModel.UserModel
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithWebLimit(t, 100)
}

func newHarnessWithWebLimit(t *testing.T, webMax int) *harness {
	t.Helper()
	clock := dbtime.NewFakeClock(time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clock.Clock())
	policies := policySvc.NewStaticStore(nil)
	queue := &jobs.ManualQueue{}
	mailer := &notifSvc.MockMailer{}
	notifier := notifSvc.NewNotificationService(store, queue, policies, map[string]notifSvc.Mailer{
		notifSvc.MailerApplication: mailer,
		notifSvc.MailerAdmin:       mailer,
		notifSvc.MailerAssignment:  mailer,
	})
	apps := appSvc.NewApplicationService(store, eventSvc.NewRecorder(store), notifier)
	apps.Clock = clock.Clock()
	signer := helperOSS.NewRefSigner("test-secret", clock.Now)
	proofs := appSvc.NewProofAttachmentService(store, helperOSS.NewMemoryBlobStore(clock.Clock()), signer, policies, apps, queue)
	limits := policySvc.NewStaticStore(map[string]int{
		rlSvc.MaxPolicyKey("proof_submission", "email"): 5,
		rlSvc.MaxPolicyKey("proof_submission", "web"):   webMax,
	})
	limiter := rlSvc.NewLimiter(limits, rlSvc.NewMemoryCounterStore(clock.Clock()))

	ctl := NewApplicationController(store, apps, proofs, limiter)
	ctl.InboundKey = "inbound-secret"
	ctl.SignedRefTTL = time.Minute

	h := &harness{
		store:    store,
		owner:    store.PutUser(&userModel.UserModel{FirstName: "Rosa", Email: "rosa@example.org", IsActive: true}),
		stranger: store.PutUser(&userModel.UserModel{FirstName: "Gina", Email: "gina@example.org", IsActive: true}),
	}
	users := map[string]*userModel.UserModel{"owner": h.owner, "stranger": h.stranger}

	app := fiber.New()
	app.Post("/api/inbound/email", ctl.InboundEmail)
	u := app.Group("/api/u", func(c *fiber.Ctx) error {
		if user, ok := users[c.Get(testUserHeader)]; ok {
			c.Locals(helperAuth.LocUser, user)
		}
		return c.Next()
	})
	u.Post("/applications", ctl.Create)
	u.Get("/applications/:id", ctl.Get)
	u.Patch("/applications/:id/step", ctl.RecordStep)
	u.Post("/applications/:id/proofs/:proof_type", ctl.SubmitProof)
	u.Post("/uploads", ctl.StageUpload)
	h.app = app
	return h
}

func (h *harness) do(t *testing.T, req *http.Request, who string) (*http.Response, map[string]any) {
	t.Helper()
	if who != "" {
		req.Header.Set(testUserHeader, who)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func (h *harness) newApplication(t *testing.T, status appModel.ApplicationStatus) *appModel.ApplicationModel {
	t.Helper()
	app := &appModel.ApplicationModel{UserID: h.owner.ID, Status: status}
	require.NoError(t, h.store.CreateApplication(context.Background(), app))
	return app
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func TestCreateUsesTokenOwner(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, jsonRequest(http.MethodPost, "/api/u/applications", `{}`), "owner")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, h.owner.ID.String(), data["application_user_id"])
	assert.Equal(t, string(appModel.ApplicationStatusDraft), data["application_status"])
}

func TestCreateRequiresUser(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, jsonRequest(http.MethodPost, "/api/u/applications", `{}`), "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestGetHidesOtherPeoplesApplications(t *testing.T) {
	h := newHarness(t)
	app := h.newApplication(t, appModel.ApplicationStatusDraft)

	resp, _ := h.do(t, httptest.NewRequest(http.MethodGet, "/api/u/applications/"+app.ID.String(), nil), "stranger")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/api/u/applications/"+app.ID.String(), nil), "owner")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/api/u/applications/not-a-uuid", nil), "owner")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRecordStep(t *testing.T) {
	h := newHarness(t)
	draft := h.newApplication(t, appModel.ApplicationStatusDraft)

	resp, _ := h.do(t, jsonRequest(http.MethodPatch, "/api/u/applications/"+draft.ID.String()+"/step", `{"step":"household"}`), "owner")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	fresh, err := h.store.GetApplication(context.Background(), draft.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.LastVisitedStep)
	assert.Equal(t, "household", *fresh.LastVisitedStep)

	resp, body := h.do(t, jsonRequest(http.MethodPatch, "/api/u/applications/"+draft.ID.String()+"/step", `{}`), "owner")
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	submitted := h.newApplication(t, appModel.ApplicationStatusInProgress)
	resp, _ = h.do(t, jsonRequest(http.MethodPatch, "/api/u/applications/"+submitted.ID.String()+"/step", `{"step":"household"}`), "owner")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func multipartProof(t *testing.T, target string, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}

func pdfBytes(size int) []byte {
	head := []byte("%PDF-1.4\n")
	return append(head, bytes.Repeat([]byte("x"), size-len(head))...)
}

func TestSubmitProofAttachesUpload(t *testing.T) {
	h := newHarness(t)
	app := h.newApplication(t, appModel.ApplicationStatusInProgress)

	req := multipartProof(t, "/api/u/applications/"+app.ID.String()+"/proofs/income", nil, "paystub.pdf", pdfBytes(4096))
	resp, _ := h.do(t, req, "owner")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	fresh, err := h.store.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.True(t, fresh.IncomeProof.Present())
	assert.Equal(t, appModel.ProofStatusNotReviewed, fresh.IncomeProofStatus)
}

func TestSubmitProofRejectsUnknownProofType(t *testing.T) {
	h := newHarness(t)
	app := h.newApplication(t, appModel.ApplicationStatusInProgress)

	req := multipartProof(t, "/api/u/applications/"+app.ID.String()+"/proofs/passport", nil, "paystub.pdf", pdfBytes(4096))
	resp, _ := h.do(t, req, "owner")
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSubmitProofWebRateLimit(t *testing.T) {
	h := newHarnessWithWebLimit(t, 2)
	app := h.newApplication(t, appModel.ApplicationStatusInProgress)

	var codes []int
	for i := 0; i < 5; i++ {
		req := multipartProof(t, "/api/u/applications/"+app.ID.String()+"/proofs/income", nil, "paystub.pdf", pdfBytes(4096))
		resp, _ := h.do(t, req, "owner")
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429, 429, 429}, codes)

	// the budget is per constituent
	other := &appModel.ApplicationModel{UserID: h.stranger.ID, Status: appModel.ApplicationStatusInProgress}
	require.NoError(t, h.store.CreateApplication(context.Background(), other))
	req := multipartProof(t, "/api/u/applications/"+other.ID.String()+"/proofs/income", nil, "paystub.pdf", pdfBytes(4096))
	resp, _ := h.do(t, req, "stranger")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestStageUploadSharesWebRateLimit(t *testing.T) {
	h := newHarnessWithWebLimit(t, 2)
	app := h.newApplication(t, appModel.ApplicationStatusInProgress)

	resp, _ := h.do(t, multipartProof(t, "/api/u/uploads", nil, "lease.pdf", pdfBytes(4096)), "owner")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, _ = h.do(t, multipartProof(t, "/api/u/applications/"+app.ID.String()+"/proofs/income", nil, "paystub.pdf", pdfBytes(4096)), "owner")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := h.do(t, multipartProof(t, "/api/u/uploads", nil, "lease.pdf", pdfBytes(4096)), "owner")
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestInboundEmail(t *testing.T) {
	h := newHarness(t)
	app := h.newApplication(t, appModel.ApplicationStatusInProgress)
	fields := map[string]string{
		"from":           "Rosa@Example.org",
		"application_id": app.ID.String(),
		"proof_type":     "residency",
	}

	t.Run("wrong key", func(t *testing.T) {
		req := multipartProof(t, "/api/inbound/email", fields, "lease.pdf", pdfBytes(4096))
		req.Header.Set(inboundKeyHeader, "nope")
		resp, _ := h.do(t, req, "")
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown sender", func(t *testing.T) {
		other := map[string]string{"from": "nobody@example.org", "application_id": app.ID.String(), "proof_type": "residency"}
		req := multipartProof(t, "/api/inbound/email", other, "lease.pdf", pdfBytes(4096))
		req.Header.Set(inboundKeyHeader, "inbound-secret")
		resp, _ := h.do(t, req, "")
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("owner attaches by email", func(t *testing.T) {
		req := multipartProof(t, "/api/inbound/email", fields, "lease.pdf", pdfBytes(4096))
		req.Header.Set(inboundKeyHeader, "inbound-secret")
		resp, _ := h.do(t, req, "")
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		fresh, err := h.store.GetApplication(context.Background(), app.ID)
		require.NoError(t, err)
		assert.True(t, fresh.ResidencyProof.Present())
	})

}
