package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"echallan-backend/internal/model"
	"echallan-backend/internal/policy"
	"echallan-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	writeCalls int
	failWrites int
	objects    []ObjectInfo
}

func (f *fakeObjectStore) IssueWriteCredential(_ context.Context, objectKey string, expiresIn time.Duration) (string, time.Time, error) {
	f.writeCalls++
	if f.writeCalls <= f.failWrites {
		return "", time.Time{}, errors.New("store unavailable")
	}
	return "https://store.local/put/" + objectKey, time.Now().Add(expiresIn), nil
}

func (f *fakeObjectStore) IssueReadCredential(_ context.Context, objectKey string, expiresIn time.Duration) (string, time.Time, error) {
	return "https://store.local/get/" + objectKey, time.Now().Add(expiresIn), nil
}

func (f *fakeObjectStore) ListObjects(_ context.Context, _ string) ([]ObjectInfo, error) {
	return f.objects, nil
}

func setupAttachmentService(t *testing.T) (*fakeInvoiceRepo, *fakeObjectStore, *recordingPublisher, AttachmentService, policy.Actor, *model.Invoice) {
	t.Helper()

	branchID := uuid.New()
	invoiceRepo := newFakeInvoiceRepo()
	store := &fakeObjectStore{}
	events := &recordingPublisher{}

	svc := NewAttachmentService(invoiceRepo, store, fakeTxManager{}, events, nil)

	invoice := &model.Invoice{ID: uuid.New(), ChallanNo: "ECH-20260104-00001", BranchID: &branchID}
	invoiceRepo.invoices[invoice.ID] = invoice

	actor := policy.Actor{ID: uuid.New(), Role: model.RoleCoOfficer, BranchID: &branchID}
	return invoiceRepo, store, events, svc, actor, invoice
}

func TestIssueUploadCredentialNeverMutatesInvoice(t *testing.T) {
	invoiceRepo, _, events, svc, actor, invoice := setupAttachmentService(t)

	cred, err := svc.IssueUploadCredential(context.Background(), actor, invoice.ID.String(), UploadCredentialRequest{Filename: "weighbridge.jpg"})
	require.NoError(t, err)

	assert.Equal(t, "invoices/"+invoice.ID.String()+"/weighbridge.jpg", cred.ObjectKey)
	assert.Equal(t, 300, cred.ExpiresIn)
	assert.NotEmpty(t, cred.UploadURL)

	// Issuing a credential is phase one; the invoice row is untouched.
	stored, err := invoiceRepo.FindByID(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ObjectKey)
	assert.Empty(t, events.events)
}

func TestIssueUploadCredentialStripsPathComponents(t *testing.T) {
	_, _, _, svc, actor, invoice := setupAttachmentService(t)

	cred, err := svc.IssueUploadCredential(context.Background(), actor, invoice.ID.String(), UploadCredentialRequest{Filename: "../../etc/passwd"})
	require.NoError(t, err)
	assert.Equal(t, "invoices/"+invoice.ID.String()+"/passwd", cred.ObjectKey)
}

func TestIssueUploadCredentialRetriesOnce(t *testing.T) {
	_, store, _, svc, actor, invoice := setupAttachmentService(t)
	store.failWrites = 1

	_, err := svc.IssueUploadCredential(context.Background(), actor, invoice.ID.String(), UploadCredentialRequest{Filename: "slip.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, store.writeCalls)
}

func TestIssueUploadCredentialUpstreamFailure(t *testing.T) {
	_, store, _, svc, actor, invoice := setupAttachmentService(t)
	store.failWrites = 2

	_, err := svc.IssueUploadCredential(context.Background(), actor, invoice.ID.String(), UploadCredentialRequest{Filename: "slip.pdf"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, apperror.StatusOf(err))
}

func TestConfirmAttachmentRecordsKeyAndPublishes(t *testing.T) {
	invoiceRepo, _, events, svc, actor, invoice := setupAttachmentService(t)
	key := "invoices/" + invoice.ID.String() + "/weighbridge.jpg"

	resp, err := svc.ConfirmAttachment(context.Background(), actor, invoice.ID.String(), ConfirmAttachmentRequest{ObjectKey: key})
	require.NoError(t, err)

	require.NotNil(t, resp.ObjectKey)
	assert.Equal(t, key, *resp.ObjectKey)

	stored, _ := invoiceRepo.FindByID(context.Background(), invoice.ID)
	require.NotNil(t, stored.ObjectKey)
	assert.Equal(t, key, *stored.ObjectKey)
	assert.Contains(t, events.events, "invoice.file_attached")
}

func TestConfirmAttachmentRejectsForeignKeyPrefix(t *testing.T) {
	_, _, _, svc, actor, invoice := setupAttachmentService(t)

	_, err := svc.ConfirmAttachment(context.Background(), actor, invoice.ID.String(), ConfirmAttachmentRequest{
		ObjectKey: "invoices/" + uuid.NewString() + "/weighbridge.jpg",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.StatusOf(err))
}

func TestConfirmAttachmentRequiresCoOfficer(t *testing.T) {
	_, _, _, svc, actor, invoice := setupAttachmentService(t)
	actor.Role = model.RoleAdminUser

	_, err := svc.ConfirmAttachment(context.Background(), actor, invoice.ID.String(), ConfirmAttachmentRequest{
		ObjectKey: "invoices/" + invoice.ID.String() + "/slip.pdf",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, apperror.StatusOf(err))
}

func TestCoOfficerCanAttachAcrossBranches(t *testing.T) {
	invoiceRepo, _, _, svc, actor, _ := setupAttachmentService(t)

	otherBranch := uuid.New()
	foreign := &model.Invoice{ID: uuid.New(), BranchID: &otherBranch}
	invoiceRepo.invoices[foreign.ID] = foreign

	key := "invoices/" + foreign.ID.String() + "/slip.pdf"
	_, err := svc.ConfirmAttachment(context.Background(), actor, foreign.ID.String(), ConfirmAttachmentRequest{ObjectKey: key})
	require.NoError(t, err)
}

func TestIssueViewCredentialBeforeAndAfterAttach(t *testing.T) {
	_, _, _, svc, actor, invoice := setupAttachmentService(t)

	// No file attached yet.
	_, err := svc.IssueViewCredential(context.Background(), actor, invoice.ID.String())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.StatusOf(err))

	key := "invoices/" + invoice.ID.String() + "/weighbridge.jpg"
	_, err = svc.ConfirmAttachment(context.Background(), actor, invoice.ID.String(), ConfirmAttachmentRequest{ObjectKey: key})
	require.NoError(t, err)

	cred, err := svc.IssueViewCredential(context.Background(), actor, invoice.ID.String())
	require.NoError(t, err)
	assert.Contains(t, cred.ViewURL, key)
	assert.NotEmpty(t, cred.ExpiresAt)
}

func TestListAttachments(t *testing.T) {
	_, store, _, svc, actor, invoice := setupAttachmentService(t)
	store.objects = []ObjectInfo{
		{Key: "invoices/" + invoice.ID.String() + "/a.jpg", Size: 1024, LastModified: time.Now()},
		{Key: "invoices/" + invoice.ID.String() + "/b.pdf", Size: 2048, LastModified: time.Now()},
	}

	attachments, err := svc.ListAttachments(context.Background(), actor, invoice.ID.String())
	require.NoError(t, err)
	require.Len(t, attachments, 2)
	assert.Contains(t, attachments[0].ReadURL, "a.jpg")
	assert.Equal(t, int64(2048), attachments[1].Size)
}

func TestAttachmentLookupHidesUnknownAndCrossBranch(t *testing.T) {
	invoiceRepo, _, _, svc, actor, _ := setupAttachmentService(t)
	actor.Role = model.RoleUser

	// Unknown id.
	_, err := svc.ListAttachments(context.Background(), actor, uuid.NewString())
	assert.Equal(t, http.StatusNotFound, apperror.StatusOf(err))

	// Cross-branch id surfaces identically.
	otherBranch := uuid.New()
	foreign := &model.Invoice{ID: uuid.New(), BranchID: &otherBranch}
	invoiceRepo.invoices[foreign.ID] = foreign

	_, err = svc.ListAttachments(context.Background(), actor, foreign.ID.String())
	assert.Equal(t, http.StatusNotFound, apperror.StatusOf(err))
}
