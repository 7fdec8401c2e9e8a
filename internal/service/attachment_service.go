package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"echallan-backend/internal/model"
	"echallan-backend/internal/policy"
	"echallan-backend/internal/repository"
	"echallan-backend/internal/websocket"
	"echallan-backend/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Credential lifetimes. Upload URLs are deliberately short: the client is
// expected to PUT immediately after requesting one.
const (
	uploadCredentialTTL = 300 * time.Second
	viewCredentialTTL   = 5 * time.Minute
	listCredentialTTL   = 1 * time.Hour

	credentialRetryBackoff = 200 * time.Millisecond
)

// ObjectInfo describes a stored object under a challan's key prefix.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the external object-storage capability the attachment manager
// consumes: issue time-boxed credentials and enumerate keys. Implemented by
// the S3 adapter in internal/storage.
type ObjectStore interface {
	IssueWriteCredential(ctx context.Context, objectKey string, expiresIn time.Duration) (string, time.Time, error)
	IssueReadCredential(ctx context.Context, objectKey string, expiresIn time.Duration) (string, time.Time, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// --- DTOs ---

type UploadCredentialRequest struct {
	Filename string `json:"filename" binding:"required"`
}

type UploadCredentialResponse struct {
	ObjectKey string `json:"object_key"`
	UploadURL string `json:"upload_url"`
	ExpiresAt string `json:"expires_at"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

type ConfirmAttachmentRequest struct {
	ObjectKey string `json:"object_key" binding:"required"`
}

type AttachmentInfo struct {
	Key          string `json:"key"`
	ReadURL      string `json:"read_url"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

type ViewCredentialResponse struct {
	ViewURL   string `json:"view_url"`
	ExpiresAt string `json:"expires_at"`
}

// --- Interface ---

// AttachmentService bridges a challan to its stored file objects. The invoice
// row only ever holds object keys; credential issuance never mutates it, and
// only ConfirmAttachment writes.
type AttachmentService interface {
	IssueUploadCredential(ctx context.Context, actor policy.Actor, invoiceID string, req UploadCredentialRequest) (UploadCredentialResponse, error)
	ConfirmAttachment(ctx context.Context, actor policy.Actor, invoiceID string, req ConfirmAttachmentRequest) (InvoiceResponse, error)
	ListAttachments(ctx context.Context, actor policy.Actor, invoiceID string) ([]AttachmentInfo, error)
	IssueViewCredential(ctx context.Context, actor policy.Actor, invoiceID string) (ViewCredentialResponse, error)
}

type attachmentService struct {
	invoiceRepo repository.InvoiceRepository
	store       ObjectStore
	txManager   repository.TransactionManager
	events      EventPublisher
	logger      *zap.Logger
}

func NewAttachmentService(
	invoiceRepo repository.InvoiceRepository,
	store ObjectStore,
	txManager repository.TransactionManager,
	events EventPublisher,
	logger *zap.Logger,
) AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &attachmentService{
		invoiceRepo: invoiceRepo,
		store:       store,
		txManager:   txManager,
		events:      events,
		logger:      logger,
	}
}

// --- Implementation ---

// objectKeyPrefix is where every file for a challan lives in the store.
func objectKeyPrefix(invoiceID uuid.UUID) string {
	return fmt.Sprintf("invoices/%s/", invoiceID)
}

// sanitizeFilename strips any path components from a client-supplied filename.
func sanitizeFilename(filename string) (string, error) {
	cleaned := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "", apperror.BadRequest("invalid filename")
	}
	if len(cleaned) > 255 {
		return "", apperror.BadRequest("filename too long")
	}
	return cleaned, nil
}

func (s *attachmentService) IssueUploadCredential(ctx context.Context, actor policy.Actor, invoiceID string, req UploadCredentialRequest) (UploadCredentialResponse, error) {
	invoice, err := s.visibleInvoiceForAttach(ctx, actor, invoiceID)
	if err != nil {
		return UploadCredentialResponse{}, err
	}

	filename, err := sanitizeFilename(req.Filename)
	if err != nil {
		return UploadCredentialResponse{}, err
	}

	objectKey := objectKeyPrefix(invoice.ID) + filename

	// Credential issuance is idempotent against the store, so one retry on
	// upstream failure is safe.
	uploadURL, expiresAt, err := s.store.IssueWriteCredential(ctx, objectKey, uploadCredentialTTL)
	if err != nil {
		s.logger.Warn("write credential issuance failed, retrying", zap.String("key", objectKey), zap.Error(err))
		time.Sleep(credentialRetryBackoff)
		uploadURL, expiresAt, err = s.store.IssueWriteCredential(ctx, objectKey, uploadCredentialTTL)
	}
	if err != nil {
		return UploadCredentialResponse{}, apperror.Upstream("failed to issue upload credential", err)
	}

	return UploadCredentialResponse{
		ObjectKey: objectKey,
		UploadURL: uploadURL,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		ExpiresIn: int(uploadCredentialTTL.Seconds()),
	}, nil
}

func (s *attachmentService) ConfirmAttachment(ctx context.Context, actor policy.Actor, invoiceID string, req ConfirmAttachmentRequest) (InvoiceResponse, error) {
	if !policy.CanConfirmAttachment(actor) {
		return InvoiceResponse{}, apperror.Forbidden("confirming attachments requires co-officer privilege")
	}

	id, err := uuid.Parse(invoiceID)
	if err != nil {
		return InvoiceResponse{}, apperror.NotFound("invoice not found")
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, findErr := s.invoiceRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("invoice not found")
		}
		if !policy.CanAttachFile(actor, invoice) {
			return apperror.NotFound("invoice not found")
		}

		if !strings.HasPrefix(req.ObjectKey, objectKeyPrefix(invoice.ID)) {
			return apperror.BadRequest("object key does not belong to this invoice")
		}

		if updateErr := s.invoiceRepo.SetObjectKey(txCtx, invoice.ID, invoice.UpdatedAt, req.ObjectKey); updateErr != nil {
			if updateErr == repository.ErrStaleRecord {
				return apperror.Conflict("invoice was modified concurrently, re-fetch and retry")
			}
			return fmt.Errorf("failed to persist object key: %w", updateErr)
		}
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	reloaded, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to reload invoice: %w", err)
	}

	s.events.Publish(websocket.EventInvoiceFileAttached, map[string]string{
		"invoice_id": reloaded.ID.String(),
		"object_key": req.ObjectKey,
	})

	return toInvoiceResponse(*reloaded), nil
}

func (s *attachmentService) ListAttachments(ctx context.Context, actor policy.Actor, invoiceID string) ([]AttachmentInfo, error) {
	invoice, err := s.visibleInvoice(ctx, actor, invoiceID)
	if err != nil {
		return nil, err
	}

	objects, err := s.store.ListObjects(ctx, objectKeyPrefix(invoice.ID))
	if err != nil {
		return nil, apperror.Upstream("failed to list stored objects", err)
	}

	result := make([]AttachmentInfo, 0, len(objects))
	for _, obj := range objects {
		readURL, _, err := s.store.IssueReadCredential(ctx, obj.Key, listCredentialTTL)
		if err != nil {
			return nil, apperror.Upstream("failed to issue read credential", err)
		}
		result = append(result, AttachmentInfo{
			Key:          obj.Key,
			ReadURL:      readURL,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
		})
	}
	return result, nil
}

func (s *attachmentService) IssueViewCredential(ctx context.Context, actor policy.Actor, invoiceID string) (ViewCredentialResponse, error) {
	invoice, err := s.visibleInvoice(ctx, actor, invoiceID)
	if err != nil {
		return ViewCredentialResponse{}, err
	}

	if invoice.ObjectKey == nil || *invoice.ObjectKey == "" {
		return ViewCredentialResponse{}, apperror.BadRequest("invoice has no attached file")
	}

	viewURL, expiresAt, err := s.store.IssueReadCredential(ctx, *invoice.ObjectKey, viewCredentialTTL)
	if err != nil {
		return ViewCredentialResponse{}, apperror.Upstream("failed to issue view credential", err)
	}

	return ViewCredentialResponse{
		ViewURL:   viewURL,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// visibleInvoice resolves the id and enforces branch scoping. Both an unknown
// id and a cross-branch id surface as the same not-found error.
func (s *attachmentService) visibleInvoice(ctx context.Context, actor policy.Actor, invoiceID string) (*model.Invoice, error) {
	return s.lookup(ctx, invoiceID, func(inv *model.Invoice) bool {
		return policy.CanViewInvoice(actor, inv)
	})
}

func (s *attachmentService) visibleInvoiceForAttach(ctx context.Context, actor policy.Actor, invoiceID string) (*model.Invoice, error) {
	return s.lookup(ctx, invoiceID, func(inv *model.Invoice) bool {
		return policy.CanAttachFile(actor, inv)
	})
}

func (s *attachmentService) lookup(ctx context.Context, invoiceID string, allowed func(*model.Invoice) bool) (*model.Invoice, error) {
	id, err := uuid.Parse(invoiceID)
	if err != nil {
		return nil, apperror.NotFound("invoice not found")
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("invoice not found")
	}

	if !allowed(invoice) {
		return nil, apperror.NotFound("invoice not found")
	}
	return invoice, nil
}
