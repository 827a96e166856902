package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/repository"
)

type memState struct {
	users         map[string]models.User
	properties    map[string]models.Property
	leases        map[string]models.Lease
	auditEvents   []models.AuditEvent
	notifications []models.Notification
	webhookEvents map[string]models.WebhookEvent
}

func (s *memState) clone() *memState {
	c := &memState{
		users:         make(map[string]models.User, len(s.users)),
		properties:    make(map[string]models.Property, len(s.properties)),
		leases:        make(map[string]models.Lease, len(s.leases)),
		auditEvents:   append([]models.AuditEvent(nil), s.auditEvents...),
		notifications: append([]models.Notification(nil), s.notifications...),
		webhookEvents: make(map[string]models.WebhookEvent, len(s.webhookEvents)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.properties {
		c.properties[k] = v
	}
	for k, v := range s.leases {
		c.leases[k] = v
	}
	for k, v := range s.webhookEvents {
		c.webhookEvents[k] = v
	}
	return c
}

type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex // held for the whole of a transaction, standing in for row locks
	state    *memState
	failures map[string]error
}

// InMemoryRepository is a repository.Repository backed by maps. Transactions
// are serialized and roll back every write made inside them on error.
type InMemoryRepository struct {
	store *memStore
	inTx  bool
}

var _ repository.Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		store: &memStore{
			state: &memState{
				users:         make(map[string]models.User),
				properties:    make(map[string]models.Property),
				leases:        make(map[string]models.Lease),
				webhookEvents: make(map[string]models.WebhookEvent),
			},
			failures: make(map[string]error),
		},
	}
}

// FailOn makes every later call to the named method return err.
// Pass a nil err to clear it.
func (r *InMemoryRepository) FailOn(method string, err error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err == nil {
		delete(r.store.failures, method)
		return
	}
	r.store.failures[method] = err
}

func (r *InMemoryRepository) fail(method string) error {
	return r.store.failures[method]
}

func (r *InMemoryRepository) RunInTx(ctx context.Context, fn func(tx repository.Repository) error) (err error) {
	if r.inTx {
		return fn(r)
	}

	r.store.txMu.Lock()
	defer r.store.txMu.Unlock()

	r.store.mu.Lock()
	if err := r.fail("RunInTx"); err != nil {
		r.store.mu.Unlock()
		return err
	}
	snapshot := r.store.state.clone()
	r.store.mu.Unlock()

	rollback := func() {
		r.store.mu.Lock()
		r.store.state = snapshot
		r.store.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(&InMemoryRepository{store: r.store, inTx: true}); err != nil {
		rollback()
		return err
	}

	return nil
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("CreateUser"); err != nil {
		return err
	}

	for _, u := range r.store.state.users {
		if u.Email == user.Email {
			return fmt.Errorf("duplicate key value violates unique constraint \"users_email_key\"")
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.store.state.users[user.ID] = *user
	return nil
}

func (r *InMemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetUserByEmail"); err != nil {
		return nil, err
	}

	for _, u := range r.store.state.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetUserByID"); err != nil {
		return nil, err
	}

	u, ok := r.store.state.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *InMemoryRepository) CreateProperty(ctx context.Context, property *models.Property) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("CreateProperty"); err != nil {
		return err
	}

	if property.ID == "" {
		property.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	property.CreatedAt = now
	property.UpdatedAt = now
	r.store.state.properties[property.ID] = *property
	return nil
}

func (r *InMemoryRepository) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetProperty"); err != nil {
		return nil, err
	}

	p, ok := r.store.state.properties[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *InMemoryRepository) GetOwnerProperties(ctx context.Context, ownerID string) ([]models.Property, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetOwnerProperties"); err != nil {
		return nil, err
	}

	var out []models.Property
	for _, p := range r.store.state.properties {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) CreateLease(ctx context.Context, lease *models.Lease) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("CreateLease"); err != nil {
		return err
	}

	if lease.ID == "" {
		lease.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	lease.CreatedAt = now
	lease.UpdatedAt = now
	r.store.state.leases[lease.ID] = *lease
	return nil
}

func (r *InMemoryRepository) GetLease(ctx context.Context, id string) (*models.Lease, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetLease"); err != nil {
		return nil, err
	}

	l, ok := r.store.state.leases[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *InMemoryRepository) LockLease(ctx context.Context, id string) (*models.Lease, error) {
	return r.GetLease(ctx, id)
}

func (r *InMemoryRepository) findLease(match func(models.Lease) bool) *models.Lease {
	for _, l := range r.store.state.leases {
		if match(l) {
			return &l
		}
	}
	return nil
}

func (r *InMemoryRepository) GetLeaseByOperationID(ctx context.Context, operationID string) (*models.Lease, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetLeaseByOperationID"); err != nil {
		return nil, err
	}

	return r.findLease(func(l models.Lease) bool {
		return l.CryptoneoOperationID != nil && *l.CryptoneoOperationID == operationID
	}), nil
}

func (r *InMemoryRepository) GetLeaseByTransactionID(ctx context.Context, transactionID string) (*models.Lease, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetLeaseByTransactionID"); err != nil {
		return nil, err
	}

	return r.findLease(func(l models.Lease) bool {
		return l.PaymentTransactionID != nil && *l.PaymentTransactionID == transactionID
	}), nil
}

func (r *InMemoryRepository) LockLeaseByOperationID(ctx context.Context, operationID string) (*models.Lease, error) {
	return r.GetLeaseByOperationID(ctx, operationID)
}

func (r *InMemoryRepository) LockLeaseByTransactionID(ctx context.Context, transactionID string) (*models.Lease, error) {
	return r.GetLeaseByTransactionID(ctx, transactionID)
}

func (r *InMemoryRepository) GetLeaseDetails(ctx context.Context, id string) (*models.LeaseDetails, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetLeaseDetails"); err != nil {
		return nil, err
	}

	l, ok := r.store.state.leases[id]
	if !ok {
		return nil, nil
	}
	p, ok := r.store.state.properties[l.PropertyID]
	if !ok {
		return nil, nil
	}
	landlord, ok := r.store.state.users[l.LandlordID]
	if !ok {
		return nil, nil
	}
	tenant, ok := r.store.state.users[l.TenantID]
	if !ok {
		return nil, nil
	}

	party := func(u models.User) models.PartySummary {
		return models.PartySummary{ID: u.ID, FullName: u.FullName, Email: u.Email, Phone: u.Phone}
	}

	return &models.LeaseDetails{
		Lease:    l,
		Property: models.PropertySummary{ID: p.ID, Title: p.Title, Address: p.Address, City: p.City},
		Landlord: party(landlord),
		Tenant:   party(tenant),
	}, nil
}

func (r *InMemoryRepository) GetUserLeases(ctx context.Context, userID string) ([]models.Lease, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetUserLeases"); err != nil {
		return nil, err
	}

	var out []models.Lease
	for _, l := range r.store.state.leases {
		if l.LandlordID == userID || l.TenantID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) UpdateLease(ctx context.Context, id string, update models.LeaseUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("UpdateLease"); err != nil {
		return err
	}

	l, ok := r.store.state.leases[id]
	if !ok {
		return repository.ErrLeaseNotFound
	}
	update.Apply(&l)
	l.UpdatedAt = time.Now().UTC()
	r.store.state.leases[id] = l
	return nil
}

func (r *InMemoryRepository) UpdateLeaseStatus(ctx context.Context, id string, status models.LeaseStatus) error {
	return r.UpdateLease(ctx, id, models.LeaseUpdate{Status: &status})
}

func (r *InMemoryRepository) FindStalePendingLeases(ctx context.Context, initiatedBefore time.Time, limit int) ([]models.Lease, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("FindStalePendingLeases"); err != nil {
		return nil, err
	}

	var out []models.Lease
	for _, l := range r.store.state.leases {
		if l.Status == models.LeaseStatusCancelled {
			continue
		}
		signatureStuck := l.Status == models.LeaseStatusAwaitingSignature &&
			l.CryptoneoSignatureStatus != nil && !l.CryptoneoSignatureStatus.IsFinal() &&
			l.SignatureInitiatedAt != nil && l.SignatureInitiatedAt.Before(initiatedBefore)
		paymentStuck := l.PaymentStatus == models.PaymentPending &&
			l.PaymentInitiatedAt != nil && l.PaymentInitiatedAt.Before(initiatedBefore)
		if signatureStuck || paymentStuck {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("InsertAuditEvent"); err != nil {
		return err
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.store.state.auditEvents = append(r.store.state.auditEvents, *event)
	return nil
}

func (r *InMemoryRepository) GetAuditEvents(ctx context.Context, leaseID string) ([]models.AuditEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetAuditEvents"); err != nil {
		return nil, err
	}

	var out []models.AuditEvent
	for _, e := range r.store.state.auditEvents {
		if e.LeaseID == leaseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) GetLatestAuditEvent(ctx context.Context, leaseID string) (*models.AuditEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetLatestAuditEvent"); err != nil {
		return nil, err
	}

	events := r.store.state.auditEvents
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].LeaseID == leaseID {
			e := events[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) InsertNotification(ctx context.Context, n *models.Notification) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("InsertNotification"); err != nil {
		return err
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if len(n.Data) == 0 {
		n.Data = []byte("{}")
	}
	r.store.state.notifications = append(r.store.state.notifications, *n)
	return nil
}

func (r *InMemoryRepository) GetUserNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("GetUserNotifications"); err != nil {
		return nil, err
	}

	var out []models.Notification
	all := r.store.state.notifications
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].UserID != userID {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *InMemoryRepository) MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("MarkNotificationRead"); err != nil {
		return false, err
	}

	for i, n := range r.store.state.notifications {
		if n.ID != notificationID || n.UserID != userID {
			continue
		}
		if n.ReadAt == nil {
			now := time.Now().UTC()
			r.store.state.notifications[i].ReadAt = &now
		}
		return true, nil
	}
	return false, nil
}

func (r *InMemoryRepository) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("InsertWebhookEvent"); err != nil {
		return false, err
	}

	for _, e := range r.store.state.webhookEvents {
		if e.Provider == event.Provider && e.EventKey == event.EventKey {
			return false, nil
		}
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.store.state.webhookEvents[event.ID] = *event
	return true, nil
}

func (r *InMemoryRepository) MarkWebhookEventProcessed(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.fail("MarkWebhookEventProcessed"); err != nil {
		return err
	}

	e, ok := r.store.state.webhookEvents[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	e.ProcessedAt = &now
	r.store.state.webhookEvents[id] = e
	return nil
}

// OverwriteLease edits a stored lease in place without stamping updated_at,
// like a statement run directly against the table
func (r *InMemoryRepository) OverwriteLease(id string, edit func(*models.Lease)) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	l, ok := r.store.state.leases[id]
	if !ok {
		return
	}
	edit(&l)
	r.store.state.leases[id] = l
}

// WebhookEvents returns every recorded callback for provider
func (r *InMemoryRepository) WebhookEvents(provider models.WebhookProvider) []models.WebhookEvent {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []models.WebhookEvent
	for _, e := range r.store.state.webhookEvents {
		if e.Provider == provider {
			out = append(out, e)
		}
	}
	return out
}

// AllNotifications returns every stored notification in insertion order
func (r *InMemoryRepository) AllNotifications() []models.Notification {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]models.Notification(nil), r.store.state.notifications...)
}
