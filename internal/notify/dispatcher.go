// Package notify tells lease parties about signature, payment and
// cancellation events, in-app and by email.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"github.com/rongwang/leasehub-server/internal/models"
	"github.com/rongwang/leasehub-server/internal/repository"
	"go.uber.org/zap"
)

// emailTimeout bounds a single delivery attempt
const emailTimeout = 15 * time.Second

// Message is one notification addressed to one user
type Message struct {
	Recipient *models.User
	Title     string
	Body      string
	Type      models.NotificationType
	Data      models.NotificationData
	DeepLink  string
}

// Dispatcher stores in-app notifications and sends the matching emails
type Dispatcher struct {
	mailer  Mailer
	baseURL string
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher. baseURL prefixes deep links.
func NewDispatcher(mailer Mailer, baseURL string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("notify"),
	}
}

// Dispatch inserts one notification row per message through repo, normally
// inside the transaction of the lease transition being announced
func (d *Dispatcher) Dispatch(ctx context.Context, repo repository.Repository, msgs []Message) ([]models.Notification, error) {
	out := make([]models.Notification, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg.Data)
		if err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
		}

		n := models.Notification{
			UserID:   msg.Recipient.ID,
			Title:    msg.Title,
			Message:  msg.Body,
			Type:     msg.Type,
			Data:     data,
			DeepLink: msg.DeepLink,
		}
		if err := repo.InsertNotification(ctx, &n); err != nil {
			return nil, ierr.WithError(err).
				WithMessage("insert notification").
				Mark(ierr.ErrDatabase)
		}
		out = append(out, n)
	}

	return out, nil
}

// Deliver emails msgs in the background. Failures are logged and dropped.
func (d *Dispatcher) Deliver(msgs []Message) {
	for _, msg := range msgs {
		if msg.Recipient == nil || msg.Recipient.Email == "" {
			continue
		}

		d.wg.Add(1)
		go func(msg Message) {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
			defer cancel()

			text := msg.Body
			if msg.DeepLink != "" {
				text = fmt.Sprintf("%s\n\n%s", msg.Body, msg.DeepLink)
			}
			if err := d.mailer.Send(ctx, msg.Recipient.Email, msg.Title, text); err != nil {
				d.logger.Warn("email delivery failed",
					zap.String("user_id", msg.Recipient.ID),
					zap.String("type", string(msg.Type)),
					zap.Error(err),
				)
			}
		}(msg)
	}
}

// Wait blocks until background deliveries finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) leaseLink(leaseID string) string {
	return fmt.Sprintf("%s/leases/%s", d.baseURL, leaseID)
}

// LeaseSigned announces a completed signature to both parties
func (d *Dispatcher) LeaseSigned(lease *models.Lease, landlord, tenant *models.User) []Message {
	data := models.NotificationData{LeaseID: lease.ID}
	return []Message{
		{
			Recipient: landlord,
			Title:     "Lease signed",
			Body:      "The lease for your property has been signed. The tenant can now proceed to payment.",
			Type:      models.NotificationLeaseSigned,
			Data:      data,
			DeepLink:  d.leaseLink(lease.ID),
		},
		{
			Recipient: tenant,
			Title:     "Lease signed",
			Body:      "Your lease has been signed. You can now pay the deposit and first month's rent.",
			Type:      models.NotificationLeaseSigned,
			Data:      data,
			DeepLink:  d.leaseLink(lease.ID) + "/payment",
		},
	}
}

// PaymentReceived announces a settled payment to both parties with the receipt
func (d *Dispatcher) PaymentReceived(lease *models.Lease, landlord, tenant *models.User, receiptURL string) []Message {
	data := models.NotificationData{LeaseID: lease.ID, ReceiptURL: receiptURL}
	return []Message{
		{
			Recipient: landlord,
			Title:     "Payment received",
			Body:      "The tenant's payment has been received. The lease is now active.",
			Type:      models.NotificationPaymentReceived,
			Data:      data,
			DeepLink:  d.leaseLink(lease.ID),
		},
		{
			Recipient: tenant,
			Title:     "Payment confirmed",
			Body:      "Your payment has been confirmed. Your lease is now active.",
			Type:      models.NotificationPaymentReceived,
			Data:      data,
			DeepLink:  d.leaseLink(lease.ID),
		},
	}
}

// LeaseCancelled tells the party that did not cancel
func (d *Dispatcher) LeaseCancelled(lease *models.Lease, recipient *models.User) []Message {
	return []Message{{
		Recipient: recipient,
		Title:     "Lease cancelled",
		Body:      "A lease you are a party to has been cancelled.",
		Type:      models.NotificationLeaseCancelled,
		Data:      models.NotificationData{LeaseID: lease.ID},
		DeepLink:  d.leaseLink(lease.ID),
	}}
}

// ReviewRequired tells the landlord that an operation on the lease is stuck with its provider
func (d *Dispatcher) ReviewRequired(lease *models.Lease, landlord *models.User) []Message {
	return []Message{{
		Recipient: landlord,
		Title:     "Lease needs attention",
		Body:      "A signature or payment for this lease has not been confirmed by the provider. Please review it.",
		Type:      models.NotificationReviewRequired,
		Data:      models.NotificationData{LeaseID: lease.ID},
		DeepLink:  d.leaseLink(lease.ID),
	}}
}
