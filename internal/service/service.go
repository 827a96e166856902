package service

import (
	"context"
	"strings"

	"github.com/rongwang/leasehub-server/internal/audit"
	"github.com/rongwang/leasehub-server/internal/auth"
	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/gateway"
	"github.com/rongwang/leasehub-server/internal/metrics"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/notify"
	"github.com/rongwang/leasehub-server/internal/repository"
	"github.com/rongwang/leasehub-server/internal/webhook"
	"go.uber.org/zap"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Authenticate(ctx context.Context, token string) (string, error)

	// Properties
	CreateProperty(ctx context.Context, userID string, req models.CreatePropertyRequest) (*models.PropertyResponse, error)
	ListProperties(ctx context.Context, userID string) (*models.PropertiesResponse, error)

	// Lease lifecycle
	CreateLease(ctx context.Context, userID string, req models.CreateLeaseRequest) (*models.LeaseResponse, error)
	GetLease(ctx context.Context, userID, leaseID string) (*models.LeaseDetailsResponse, error)
	ListLeases(ctx context.Context, userID string) (*models.LeasesResponse, error)
	UpdateLease(ctx context.Context, userID, leaseID string, req models.UpdateLeaseRequest) (*models.LeaseResponse, error)
	UpdateLeaseStatus(ctx context.Context, userID, leaseID string, status models.LeaseStatus) (*models.LeaseResponse, error)
	CancelLease(ctx context.Context, userID, leaseID string) (*models.LeaseResponse, error)

	// Audit trail
	GetAuditTrail(ctx context.Context, userID, leaseID string) (*models.AuditTrailResponse, error)
	VerifyLease(ctx context.Context, userID, leaseID string) (*models.VerifyLeaseResponse, error)

	// Signature
	InitiateSignature(ctx context.Context, userID, leaseID string, req models.InitiateSignatureRequest) (*models.SignatureResponse, error)
	CheckSignatureStatus(ctx context.Context, userID, operationID string) (*models.SignatureResponse, error)
	HandleSignatureWebhook(ctx context.Context, payload models.SignatureWebhookPayload, raw []byte) (*models.WebhookResponse, error)

	// Payment
	InitiatePayment(ctx context.Context, userID, leaseID string, req models.InitiatePaymentRequest) (*models.PaymentResponse, error)
	ConfirmPayment(ctx context.Context, userID, transactionID string, req models.ConfirmPaymentRequest) (*models.PaymentResponse, error)
	CheckPaymentStatus(ctx context.Context, userID, transactionID string) (*models.PaymentResponse, error)
	HandlePaymentWebhook(ctx context.Context, payload models.PaymentWebhookPayload, raw []byte) (*models.WebhookResponse, error)

	// Notifications
	ListNotifications(ctx context.Context, userID string, limit int) (*models.NotificationsResponse, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error

	// Reconciliation
	ApplySignatureState(ctx context.Context, operationID string, state models.SignatureState, signedDocumentURL string) (bool, error)
	ApplyPaymentState(ctx context.Context, transactionID string, status models.PaymentStatus, receiptURL string) (bool, error)
	FlagForReview(ctx context.Context, leaseID string) (bool, error)
}

// Params holds the collaborators of DefaultService
type Params struct {
	Repo       repository.Repository
	Auth       auth.Provider
	Signatures gateway.SignatureClient
	Payments   gateway.PaymentClient
	Recorder   *audit.Recorder
	Notifier   *notify.Dispatcher
	Dedupe     webhook.DedupeStore
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo       repository.Repository
	auth       auth.Provider
	signatures gateway.SignatureClient
	payments   gateway.PaymentClient
	recorder   *audit.Recorder
	notifier   *notify.Dispatcher
	dedupe     webhook.DedupeStore
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(p Params) Service {
	return &DefaultService{
		repo:       p.Repo,
		auth:       p.Auth,
		signatures: p.Signatures,
		payments:   p.Payments,
		recorder:   p.Recorder,
		notifier:   p.Notifier,
		dedupe:     p.Dedupe,
		metrics:    p.Metrics,
		logger:     p.Logger.Named("service"),
	}
}

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existingUser, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("error checking user existence").
			Mark(ierr.ErrDatabase)
	}
	if existingUser != nil {
		return nil, ierr.NewError("user with this email already exists").
			WithHint("An account with this email already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	identity, err := s.auth.SignUp(ctx, auth.Credentials{Email: email, Password: req.Password})
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:       identity.UserID,
		Email:    email,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     req.Role,
		Password: identity.PasswordHash,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("error creating user").
			Mark(ierr.ErrDatabase)
	}

	s.logger.Info("user signed up",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("provider", s.auth.Name()),
	)

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		Token:     identity.Token,
		ExpiresIn: identity.ExpiresIn,
	}, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("error getting user").
			Mark(ierr.ErrDatabase)
	}

	identity, err := s.auth.Login(ctx, auth.Credentials{Email: email, Password: req.Password}, user)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		Token:     identity.Token,
		ExpiresIn: identity.ExpiresIn,
	}, nil
}

// Authenticate returns the user id carried by a bearer token
func (s *DefaultService) Authenticate(ctx context.Context, token string) (string, error) {
	return s.auth.ValidateToken(ctx, token)
}

// Property methods
func (s *DefaultService) CreateProperty(
	ctx context.Context,
	userID string,
	req models.CreatePropertyRequest,
) (*models.PropertyResponse, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleTenant {
		return nil, ierr.NewError("tenants cannot list properties").
			WithHint("Only landlords can add properties").
			Mark(ierr.ErrPermissionDenied)
	}

	property := &models.Property{
		OwnerID: userID,
		Title:   req.Title,
		Address: req.Address,
		City:    req.City,
	}
	if err := s.repo.CreateProperty(ctx, property); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("error creating property").
			Mark(ierr.ErrDatabase)
	}

	return &models.PropertyResponse{Status: "success", Property: property}, nil
}

func (s *DefaultService) ListProperties(ctx context.Context, userID string) (*models.PropertiesResponse, error) {
	properties, err := s.repo.GetOwnerProperties(ctx, userID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("error listing properties").
			Mark(ierr.ErrDatabase)
	}
	if properties == nil {
		properties = []models.Property{}
	}

	return &models.PropertiesResponse{Status: "success", Properties: properties}, nil
}

// Notification methods
const defaultNotificationLimit = 50

func (s *DefaultService) ListNotifications(ctx context.Context, userID string, limit int) (*models.NotificationsResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}

	notifications, err := s.repo.GetUserNotifications(ctx, userID, limit)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("error listing notifications").
			Mark(ierr.ErrDatabase)
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	return &models.NotificationsResponse{Status: "success", Notifications: notifications}, nil
}

func (s *DefaultService) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	found, err := s.repo.MarkNotificationRead(ctx, userID, notificationID)
	if err != nil {
		return ierr.WithError(err).
			WithMessage("error marking notification read").
			Mark(ierr.ErrDatabase)
	}
	if !found {
		return ierr.NewErrorf("notification %s not found", notificationID).
			WithHint("Notification not found").
			Mark(ierr.ErrNotFound)
	}

	return nil
}

// Helper methods
func (s *DefaultService) requireUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("error getting user").
			Mark(ierr.ErrDatabase)
	}
	if user == nil {
		return nil, ierr.NewErrorf("user %s not found", userID).
			WithHint("User not found").
			Mark(ierr.ErrNotFound)
	}

	return user, nil
}
