package repository

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm/schema"

	appModel "vulcan_backend/internals/features/applications/applications/model"
	assignModel "vulcan_backend/internals/features/applications/assignments/model"
	eventModel "vulcan_backend/internals/features/events/events/model"
	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	userModel "vulcan_backend/internals/features/users/user/model"
	"vulcan_backend/internals/helpers/apperr"
	"vulcan_backend/internals/helpers/dbtime"
)

// MemoryStore is a thread-safe in-process Store. Transactions are serialized:
// WithTx holds the store mutex for the whole callback, works on a copy and
// swaps it in on success. Code running inside a transaction must only use the
// tx handle; calling the root store from there deadlocks.
type MemoryStore struct {
	sh *memoryShared
	tx *memoryData
}

type memoryShared struct {
	mu    sync.Mutex
	data  *memoryData
	clock dbtime.Clock

	fmu      sync.Mutex
	failures map[string]error
}

func (sh *memoryShared) failure(op string) error {
	sh.fmu.Lock()
	defer sh.fmu.Unlock()
	return sh.failures[op]
}

type memoryData struct {
	applications  map[uuid.UUID]appModel.ApplicationModel
	audits        []appModel.ProofSubmissionAuditModel
	reviews       []appModel.ProofReviewModel
	statusChanges []appModel.ApplicationStatusChangeModel
	events        []eventModel.EventModel
	notifications []notifModel.NotificationModel
	templates     map[string]notifModel.EmailTemplateModel
	vouchers      map[uuid.UUID]assignModel.VoucherModel
	evaluations   []assignModel.EvaluationModel
	trainings     []assignModel.TrainingSessionModel
	users         map[uuid.UUID]userModel.UserModel
}

var applicationSchema = mustParse(&appModel.ApplicationModel{})

func mustParse(v any) *schema.Schema {
	s, err := schema.Parse(v, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		panic(err)
	}
	return s
}

func NewMemoryStore(clock dbtime.Clock) *MemoryStore {
	return &MemoryStore{sh: &memoryShared{
		data:     newMemoryData(),
		failures: map[string]error{},
		clock:    clock.OrDefault(),
	}}
}

func newMemoryData() *memoryData {
	return &memoryData{
		applications: map[uuid.UUID]appModel.ApplicationModel{},
		templates:    map[string]notifModel.EmailTemplateModel{},
		vouchers:     map[uuid.UUID]assignModel.VoucherModel{},
		users:        map[uuid.UUID]userModel.UserModel{},
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for k, v := range d.applications {
		c.applications[k] = v
	}
	for k, v := range d.templates {
		c.templates[k] = v
	}
	for k, v := range d.vouchers {
		c.vouchers[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	c.audits = append(c.audits, d.audits...)
	c.reviews = append(c.reviews, d.reviews...)
	c.statusChanges = append(c.statusChanges, d.statusChanges...)
	c.events = append(c.events, d.events...)
	c.notifications = append(c.notifications, d.notifications...)
	c.evaluations = append(c.evaluations, d.evaluations...)
	c.trainings = append(c.trainings, d.trainings...)
	return c
}

// FailOn makes every later call of op return err until cleared with FailOn(op, nil).
// It may be called while a transaction is running.
func (m *MemoryStore) FailOn(op string, err error) {
	m.sh.fmu.Lock()
	defer m.sh.fmu.Unlock()
	if err == nil {
		delete(m.sh.failures, op)
		return
	}
	m.sh.failures[op] = err
}

func (m *MemoryStore) do(op string, fn func(d *memoryData) error) error {
	if err := m.sh.failure(op); err != nil {
		return err
	}
	if m.tx != nil {
		return fn(m.tx)
	}
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	return fn(m.sh.data)
}

func (m *MemoryStore) now() time.Time { return m.sh.clock() }

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if m.tx != nil {
		snapshot := m.tx.clone()
		if err := fn(m); err != nil {
			*m.tx = *snapshot
			return err
		}
		return nil
	}

	if err := m.sh.failure("WithTx"); err != nil {
		return err
	}
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	work := m.sh.data.clone()
	if err := fn(&MemoryStore{sh: m.sh, tx: work}); err != nil {
		return err
	}
	if err := m.sh.failure("Commit"); err != nil {
		return err
	}
	m.sh.data = work
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func ensureTime(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}

func ensureMeta(m *datatypes.JSONMap) {
	if *m == nil {
		*m = datatypes.JSONMap{}
	}
}

// newestFirst sorts by created_at desc; rows created later in the same instant come first.
func newestFirst[T any](rows []T, createdAt func(T) time.Time) []T {
	out := make([]T, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return createdAt(out[i]).After(createdAt(out[j])) })
	return out
}

/* =========================================================
   Applications
========================================================= */

func (m *MemoryStore) CreateApplication(_ context.Context, app *appModel.ApplicationModel) error {
	return m.do("CreateApplication", func(d *memoryData) error {
		ensureID(&app.ID)
		now := m.now()
		ensureTime(&app.CreatedAt, now)
		ensureTime(&app.UpdatedAt, now)
		if app.Status == "" {
			app.Status = appModel.ApplicationStatusDraft
		}
		if app.IncomeProofStatus == "" {
			app.IncomeProofStatus = appModel.ProofStatusNotReviewed
		}
		if app.ResidencyProofStatus == "" {
			app.ResidencyProofStatus = appModel.ProofStatusNotReviewed
		}
		if app.MedicalCertificationStatus == "" {
			app.MedicalCertificationStatus = appModel.CertificationNotRequested
		}
		d.applications[app.ID] = *app
		return nil
	})
}

func (m *MemoryStore) GetApplication(_ context.Context, id uuid.UUID) (*appModel.ApplicationModel, error) {
	var out *appModel.ApplicationModel
	err := m.do("GetApplication", func(d *memoryData) error {
		app, ok := d.applications[id]
		if !ok {
			return apperr.ErrNotFound
		}
		out = &app
		return nil
	})
	return out, err
}

// LockApplication is a plain read: transactions are already serialized.
func (m *MemoryStore) LockApplication(ctx context.Context, id uuid.UUID) (*appModel.ApplicationModel, error) {
	if err := m.do("LockApplication", func(*memoryData) error { return nil }); err != nil {
		return nil, err
	}
	return m.GetApplication(ctx, id)
}

func (m *MemoryStore) UpdateApplicationColumns(_ context.Context, app *appModel.ApplicationModel, columns ...string) error {
	return m.do("UpdateApplicationColumns", func(d *memoryData) error {
		cur, ok := d.applications[app.ID]
		if !ok {
			return apperr.ErrNotFound
		}
		src := reflect.ValueOf(app).Elem()
		dst := reflect.ValueOf(&cur).Elem()
		for _, col := range columns {
			f := applicationSchema.LookUpField(col)
			if f == nil {
				return fmt.Errorf("unknown column %q", col)
			}
			dst.FieldByIndex(f.StructField.Index).Set(src.FieldByIndex(f.StructField.Index))
		}
		d.applications[app.ID] = cur
		return nil
	})
}

func (m *MemoryStore) BatchUpdateStatus(_ context.Context, ids []uuid.UUID, status appModel.ApplicationStatus, at time.Time) (int64, error) {
	var n int64
	err := m.do("BatchUpdateStatus", func(d *memoryData) error {
		for _, id := range ids {
			app, ok := d.applications[id]
			if !ok {
				continue
			}
			app.Status = status
			app.UpdatedAt = at
			d.applications[id] = app
			n++
		}
		return nil
	})
	return n, err
}

func (m *MemoryStore) ListApplicationsNeedingReview(_ context.Context, since time.Time, limit int) ([]appModel.ApplicationModel, error) {
	var out []appModel.ApplicationModel
	err := m.do("ListApplicationsNeedingReview", func(d *memoryData) error {
		for _, app := range d.applications {
			if app.NeedsReviewSince != nil && app.NeedsReviewSince.Before(since) {
				out = append(out, app)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].NeedsReviewSince.Before(*out[j].NeedsReviewSince) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

/* =========================================================
   Proof audit trail
========================================================= */

func (m *MemoryStore) CreateProofSubmissionAudit(_ context.Context, a *appModel.ProofSubmissionAuditModel) error {
	return m.do("CreateProofSubmissionAudit", func(d *memoryData) error {
		ensureID(&a.ID)
		ensureTime(&a.CreatedAt, m.now())
		ensureMeta(&a.Metadata)
		d.audits = append(d.audits, *a)
		return nil
	})
}

func (m *MemoryStore) ListProofSubmissionAudits(_ context.Context, applicationID uuid.UUID) ([]appModel.ProofSubmissionAuditModel, error) {
	var out []appModel.ProofSubmissionAuditModel
	err := m.do("ListProofSubmissionAudits", func(d *memoryData) error {
		for _, a := range d.audits {
			if a.ApplicationID == applicationID {
				out = append(out, a)
			}
		}
		out = newestFirst(out, func(a appModel.ProofSubmissionAuditModel) time.Time { return a.CreatedAt })
		return nil
	})
	return out, err
}

func (m *MemoryStore) CreateProofReview(_ context.Context, r *appModel.ProofReviewModel) error {
	return m.do("CreateProofReview", func(d *memoryData) error {
		ensureID(&r.ID)
		ensureTime(&r.CreatedAt, m.now())
		ensureMeta(&r.Metadata)
		d.reviews = append(d.reviews, *r)
		return nil
	})
}

func (m *MemoryStore) ListProofReviews(_ context.Context, applicationID uuid.UUID) ([]appModel.ProofReviewModel, error) {
	var out []appModel.ProofReviewModel
	err := m.do("ListProofReviews", func(d *memoryData) error {
		for _, r := range d.reviews {
			if r.ApplicationID == applicationID {
				out = append(out, r)
			}
		}
		out = newestFirst(out, func(r appModel.ProofReviewModel) time.Time { return r.CreatedAt })
		return nil
	})
	return out, err
}

func (m *MemoryStore) CreateStatusChange(_ context.Context, c *appModel.ApplicationStatusChangeModel) error {
	return m.do("CreateStatusChange", func(d *memoryData) error {
		ensureID(&c.ID)
		ensureTime(&c.CreatedAt, m.now())
		ensureMeta(&c.Metadata)
		d.statusChanges = append(d.statusChanges, *c)
		return nil
	})
}

func (m *MemoryStore) ListStatusChanges(_ context.Context, applicationID uuid.UUID) ([]appModel.ApplicationStatusChangeModel, error) {
	var out []appModel.ApplicationStatusChangeModel
	err := m.do("ListStatusChanges", func(d *memoryData) error {
		for _, c := range d.statusChanges {
			if c.ApplicationID == applicationID {
				out = append(out, c)
			}
		}
		out = newestFirst(out, func(c appModel.ApplicationStatusChangeModel) time.Time { return c.CreatedAt })
		return nil
	})
	return out, err
}

/* =========================================================
   Events
========================================================= */

func (m *MemoryStore) CreateEvent(_ context.Context, e *eventModel.EventModel) error {
	return m.do("CreateEvent", func(d *memoryData) error {
		ensureID(&e.ID)
		ensureTime(&e.CreatedAt, m.now())
		ensureMeta(&e.Metadata)
		d.events = append(d.events, *e)
		return nil
	})
}

func (m *MemoryStore) ListEvents(_ context.Context, subjectType string, subjectID uuid.UUID) ([]eventModel.EventModel, error) {
	var out []eventModel.EventModel
	err := m.do("ListEvents", func(d *memoryData) error {
		for _, e := range d.events {
			if e.SubjectType == subjectType && e.SubjectID != nil && *e.SubjectID == subjectID {
				out = append(out, e)
			}
		}
		out = newestFirst(out, func(e eventModel.EventModel) time.Time { return e.CreatedAt })
		return nil
	})
	return out, err
}

// AllEvents returns every event in insertion order.
func (m *MemoryStore) AllEvents() []eventModel.EventModel {
	var out []eventModel.EventModel
	_ = m.do("", func(d *memoryData) error {
		out = append(out, d.events...)
		return nil
	})
	return out
}

/* =========================================================
   Notifications
========================================================= */

func (m *MemoryStore) CreateNotification(_ context.Context, n *notifModel.NotificationModel) error {
	return m.do("CreateNotification", func(d *memoryData) error {
		ensureID(&n.ID)
		now := m.now()
		ensureTime(&n.CreatedAt, now)
		ensureTime(&n.UpdatedAt, now)
		ensureMeta(&n.Metadata)
		if n.DeliveryStatus == "" {
			n.DeliveryStatus = notifModel.DeliveryPending
		}
		d.notifications = append(d.notifications, *n)
		return nil
	})
}

func (m *MemoryStore) findNotification(d *memoryData, id uuid.UUID) int {
	for i := range d.notifications {
		if d.notifications[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) GetNotification(_ context.Context, id uuid.UUID) (*notifModel.NotificationModel, error) {
	var out *notifModel.NotificationModel
	err := m.do("GetNotification", func(d *memoryData) error {
		i := m.findNotification(d, id)
		if i < 0 {
			return apperr.ErrNotFound
		}
		n := d.notifications[i]
		n.Metadata = copyMeta(n.Metadata)
		out = &n
		return nil
	})
	return out, err
}

func (m *MemoryStore) UpdateNotificationDelivery(_ context.Context, id uuid.UUID, status notifModel.DeliveryStatus, metadata datatypes.JSONMap) error {
	return m.do("UpdateNotificationDelivery", func(d *memoryData) error {
		i := m.findNotification(d, id)
		if i < 0 {
			return apperr.ErrNotFound
		}
		d.notifications[i].DeliveryStatus = status
		d.notifications[i].Metadata = copyMeta(metadata)
		d.notifications[i].UpdatedAt = m.now()
		return nil
	})
}

func (m *MemoryStore) MarkNotificationRead(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.do("MarkNotificationRead", func(d *memoryData) error {
		i := m.findNotification(d, id)
		if i < 0 {
			return apperr.ErrNotFound
		}
		if d.notifications[i].ReadAt == nil {
			t := at
			d.notifications[i].ReadAt = &t
		}
		return nil
	})
}

func (m *MemoryStore) ListNotificationsFor(_ context.Context, notifiableType string, notifiableID uuid.UUID) ([]notifModel.NotificationModel, error) {
	var out []notifModel.NotificationModel
	err := m.do("ListNotificationsFor", func(d *memoryData) error {
		for _, n := range d.notifications {
			if n.NotifiableType == notifiableType && n.NotifiableID != nil && *n.NotifiableID == notifiableID {
				out = append(out, n)
			}
		}
		out = newestFirst(out, func(n notifModel.NotificationModel) time.Time { return n.CreatedAt })
		return nil
	})
	return out, err
}

func (m *MemoryStore) ListRetryableNotifications(_ context.Context, staleBefore time.Time, limit int) ([]notifModel.NotificationModel, error) {
	var out []notifModel.NotificationModel
	err := m.do("ListRetryableNotifications", func(d *memoryData) error {
		for _, n := range d.notifications {
			stalePending := n.DeliveryStatus == notifModel.DeliveryPending && n.CreatedAt.Before(staleBefore)
			if n.DeliveryStatus == notifModel.DeliveryError || stalePending {
				out = append(out, n)
			}
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// AllNotifications returns every notification in insertion order.
func (m *MemoryStore) AllNotifications() []notifModel.NotificationModel {
	var out []notifModel.NotificationModel
	_ = m.do("", func(d *memoryData) error {
		out = append(out, d.notifications...)
		return nil
	})
	return out
}

func (m *MemoryStore) PutEmailTemplate(t notifModel.EmailTemplateModel) {
	_ = m.do("", func(d *memoryData) error {
		d.templates[t.Name] = t
		return nil
	})
}

func (m *MemoryStore) GetEmailTemplate(_ context.Context, name string) (*notifModel.EmailTemplateModel, error) {
	var out *notifModel.EmailTemplateModel
	err := m.do("GetEmailTemplate", func(d *memoryData) error {
		t, ok := d.templates[name]
		if !ok {
			return apperr.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func copyMeta(in datatypes.JSONMap) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}

/* =========================================================
   Children
========================================================= */

func (m *MemoryStore) GetVoucherByApplication(_ context.Context, applicationID uuid.UUID) (*assignModel.VoucherModel, error) {
	var out *assignModel.VoucherModel
	err := m.do("GetVoucherByApplication", func(d *memoryData) error {
		v, ok := d.vouchers[applicationID]
		if !ok {
			return apperr.ErrNotFound
		}
		out = &v
		return nil
	})
	return out, err
}

// CreateVoucher enforces the unique application and code indexes like the
// database does.
func (m *MemoryStore) CreateVoucher(_ context.Context, v *assignModel.VoucherModel) error {
	return m.do("CreateVoucher", func(d *memoryData) error {
		if _, exists := d.vouchers[v.ApplicationID]; exists {
			return apperr.ErrConflict
		}
		for _, other := range d.vouchers {
			if other.Code == v.Code {
				return apperr.ErrConflict
			}
		}
		ensureID(&v.ID)
		now := m.now()
		ensureTime(&v.CreatedAt, now)
		ensureTime(&v.UpdatedAt, now)
		d.vouchers[v.ApplicationID] = *v
		return nil
	})
}

func (m *MemoryStore) CountVouchers() int {
	n := 0
	_ = m.do("", func(d *memoryData) error {
		n = len(d.vouchers)
		return nil
	})
	return n
}

func (m *MemoryStore) CreateEvaluation(_ context.Context, e *assignModel.EvaluationModel) error {
	return m.do("CreateEvaluation", func(d *memoryData) error {
		ensureID(&e.ID)
		now := m.now()
		ensureTime(&e.CreatedAt, now)
		ensureTime(&e.UpdatedAt, now)
		d.evaluations = append(d.evaluations, *e)
		return nil
	})
}

func (m *MemoryStore) CreateTrainingSession(_ context.Context, s *assignModel.TrainingSessionModel) error {
	return m.do("CreateTrainingSession", func(d *memoryData) error {
		ensureID(&s.ID)
		now := m.now()
		ensureTime(&s.CreatedAt, now)
		ensureTime(&s.UpdatedAt, now)
		d.trainings = append(d.trainings, *s)
		return nil
	})
}

func (m *MemoryStore) GetEvaluation(_ context.Context, id uuid.UUID) (*assignModel.EvaluationModel, error) {
	var out *assignModel.EvaluationModel
	err := m.do("GetEvaluation", func(d *memoryData) error {
		for i := range d.evaluations {
			if d.evaluations[i].ID == id {
				e := d.evaluations[i]
				out = &e
				return nil
			}
		}
		return apperr.ErrNotFound
	})
	return out, err
}

func (m *MemoryStore) GetTrainingSession(_ context.Context, id uuid.UUID) (*assignModel.TrainingSessionModel, error) {
	var out *assignModel.TrainingSessionModel
	err := m.do("GetTrainingSession", func(d *memoryData) error {
		for i := range d.trainings {
			if d.trainings[i].ID == id {
				t := d.trainings[i]
				out = &t
				return nil
			}
		}
		return apperr.ErrNotFound
	})
	return out, err
}

func (m *MemoryStore) SetVoucherStatus(_ context.Context, id uuid.UUID, from, to assignModel.VoucherStatus, at time.Time) error {
	return m.do("SetVoucherStatus", func(d *memoryData) error {
		for appID, v := range d.vouchers {
			if v.ID != id {
				continue
			}
			if v.Status != from {
				return apperr.ErrConflict
			}
			v.Status, v.UpdatedAt = to, at
			d.vouchers[appID] = v
			return nil
		}
		return apperr.ErrConflict
	})
}

func (m *MemoryStore) SetEvaluationStatus(_ context.Context, id uuid.UUID, from, to assignModel.EvaluationStatus, at time.Time) error {
	return m.do("SetEvaluationStatus", func(d *memoryData) error {
		for i := range d.evaluations {
			e := &d.evaluations[i]
			if e.ID == id && e.Status == from {
				e.Status, e.UpdatedAt = to, at
				return nil
			}
		}
		return apperr.ErrConflict
	})
}

func (m *MemoryStore) SetTrainingSessionStatus(_ context.Context, id uuid.UUID, from, to assignModel.TrainingSessionStatus, at time.Time) error {
	return m.do("SetTrainingSessionStatus", func(d *memoryData) error {
		for i := range d.trainings {
			t := &d.trainings[i]
			if t.ID == id && t.Status == from {
				t.Status, t.UpdatedAt = to, at
				return nil
			}
		}
		return apperr.ErrConflict
	})
}

func (m *MemoryStore) CountEvaluations() int {
	n := 0
	_ = m.do("", func(d *memoryData) error {
		n = len(d.evaluations)
		return nil
	})
	return n
}

func (m *MemoryStore) CountTrainingSessions() int {
	n := 0
	_ = m.do("", func(d *memoryData) error {
		n = len(d.trainings)
		return nil
	})
	return n
}

/* =========================================================
   Users
========================================================= */

// PutUser seeds a user row. The zero value of IsActive is stored as given.
func (m *MemoryStore) PutUser(u *userModel.UserModel) *userModel.UserModel {
	_ = m.do("", func(d *memoryData) error {
		ensureID(&u.ID)
		u.SetDefaultValues()
		ensureTime(&u.CreatedAt, m.now())
		d.users[u.ID] = *u
		return nil
	})
	return u
}

func (m *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*userModel.UserModel, error) {
	var out *userModel.UserModel
	err := m.do("GetUser", func(d *memoryData) error {
		u, ok := d.users[id]
		if !ok {
			return apperr.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (*userModel.UserModel, error) {
	var out *userModel.UserModel
	email = strings.ToLower(strings.TrimSpace(email))
	err := m.do("FindUserByEmail", func(d *memoryData) error {
		for _, u := range d.users {
			if u.Email == email {
				out = &u
				return nil
			}
		}
		return apperr.ErrNotFound
	})
	return out, err
}

func (m *MemoryStore) ListUsersByRole(_ context.Context, role string) ([]userModel.UserModel, error) {
	var out []userModel.UserModel
	err := m.do("ListUsersByRole", func(d *memoryData) error {
		for _, u := range d.users {
			if u.Role == role && u.IsActive {
				out = append(out, u)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}
