package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/rongwang/leasehub-server/internal/gateway"
	"github.com/rongwang/leasehub-server/internal/models"
)

// FakeSignatureClient hands out sequential operation ids and answers status
// queries from a settable table
type FakeSignatureClient struct {
	mu          sync.Mutex
	seq         int
	operations  map[string]gateway.SignatureOperation
	Requests    []gateway.SignatureRequest
	StatusCalls int
	InitiateErr error
	StatusErr   error
}

var _ gateway.SignatureClient = (*FakeSignatureClient)(nil)

func NewFakeSignatureClient() *FakeSignatureClient {
	return &FakeSignatureClient{operations: make(map[string]gateway.SignatureOperation)}
}

func (f *FakeSignatureClient) Initiate(ctx context.Context, req gateway.SignatureRequest) (*gateway.SignatureOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.InitiateErr != nil {
		return nil, f.InitiateErr
	}

	f.seq++
	f.Requests = append(f.Requests, req)
	op := gateway.SignatureOperation{
		OperationID: fmt.Sprintf("op-%d", f.seq),
		Status:      models.SignaturePending,
		SigningURL:  fmt.Sprintf("https://sign.example.com/op-%d", f.seq),
	}
	f.operations[op.OperationID] = op
	return &op, nil
}

func (f *FakeSignatureClient) Status(ctx context.Context, operationID string) (*gateway.SignatureOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StatusCalls++
	if f.StatusErr != nil {
		return nil, f.StatusErr
	}

	op, ok := f.operations[operationID]
	if !ok {
		return nil, fmt.Errorf("unknown operation %s", operationID)
	}
	return &op, nil
}

// SetStatus changes what the provider reports for operationID
func (f *FakeSignatureClient) SetStatus(operationID string, status models.SignatureState, signedDocumentURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	op := f.operations[operationID]
	op.OperationID = operationID
	op.Status = status
	op.SignedDocumentURL = signedDocumentURL
	f.operations[operationID] = op
}

// FakePaymentClient hands out sequential transaction ids. Confirm settles a
// transaction as paid unless ConfirmStatus says otherwise.
type FakePaymentClient struct {
	mu            sync.Mutex
	seq           int
	transactions  map[string]gateway.PaymentTransaction
	Requests      []gateway.PaymentRequest
	StatusCalls   int
	RequiresOTP   bool
	ConfirmStatus models.PaymentStatus
	InitiateErr   error
	ConfirmErr    error
	StatusErr     error
}

var _ gateway.PaymentClient = (*FakePaymentClient)(nil)

func NewFakePaymentClient() *FakePaymentClient {
	return &FakePaymentClient{
		transactions:  make(map[string]gateway.PaymentTransaction),
		RequiresOTP:   true,
		ConfirmStatus: models.PaymentPaid,
	}
}

func (f *FakePaymentClient) Initiate(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.InitiateErr != nil {
		return nil, f.InitiateErr
	}

	f.seq++
	f.Requests = append(f.Requests, req)
	tx := gateway.PaymentTransaction{
		TransactionID: fmt.Sprintf("tx-%d", f.seq),
		Status:        models.PaymentPending,
		RequiresOTP:   f.RequiresOTP,
		Message:       "payment initiated",
	}
	f.transactions[tx.TransactionID] = tx
	return &tx, nil
}

func (f *FakePaymentClient) Confirm(ctx context.Context, transactionID, otp string) (*gateway.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ConfirmErr != nil {
		return nil, f.ConfirmErr
	}

	tx, ok := f.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", transactionID)
	}
	tx.Status = f.ConfirmStatus
	if tx.Status == models.PaymentPaid {
		tx.ReceiptURL = fmt.Sprintf("https://pay.example.com/receipts/%s", transactionID)
	}
	f.transactions[transactionID] = tx
	return &tx, nil
}

func (f *FakePaymentClient) Status(ctx context.Context, transactionID string) (*gateway.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StatusCalls++
	if f.StatusErr != nil {
		return nil, f.StatusErr
	}

	tx, ok := f.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", transactionID)
	}
	return &tx, nil
}

// SetStatus changes what the provider reports for transactionID
func (f *FakePaymentClient) SetStatus(transactionID string, status models.PaymentStatus, receiptURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := f.transactions[transactionID]
	tx.TransactionID = transactionID
	tx.Status = status
	tx.ReceiptURL = receiptURL
	f.transactions[transactionID] = tx
}
