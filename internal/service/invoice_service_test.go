package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"echallan-backend/internal/model"
	"echallan-backend/internal/policy"
	"echallan-backend/internal/repository"
	"echallan-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// --- Fakes ---

type fakeInvoiceRepo struct {
	invoices map[uuid.UUID]*model.Invoice
	count    int64
	stats    model.InvoiceStats

	lastFilter  repository.InvoiceListFilter
	listResult  []model.Invoice
	staleUpdate bool
	lastUpdates map[string]interface{}
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: map[uuid.UUID]*model.Invoice{}}
}

func (f *fakeInvoiceRepo) Create(_ context.Context, invoice *model.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	now := time.Now()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	f.invoices[invoice.ID] = invoice
	return nil
}

func (f *fakeInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Invoice, error) {
	invoice, ok := f.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *invoice
	return &copied, nil
}

func (f *fakeInvoiceRepo) List(_ context.Context, filter repository.InvoiceListFilter) ([]model.Invoice, int64, error) {
	f.lastFilter = filter
	return f.listResult, int64(len(f.listResult)), nil
}

func (f *fakeInvoiceRepo) UpdatePayment(_ context.Context, id uuid.UUID, _ time.Time, fields map[string]interface{}) error {
	if f.staleUpdate {
		return repository.ErrStaleRecord
	}
	f.lastUpdates = fields
	if invoice, ok := f.invoices[id]; ok {
		if v, ok := fields["payment_status"].(string); ok {
			invoice.PaymentStatus = v
		}
		if v, ok := fields["payment_method"].(string); ok {
			invoice.PaymentMethod = v
		}
		invoice.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeInvoiceRepo) SetObjectKey(_ context.Context, id uuid.UUID, _ time.Time, objectKey string) error {
	if f.staleUpdate {
		return repository.ErrStaleRecord
	}
	if invoice, ok := f.invoices[id]; ok {
		invoice.ObjectKey = &objectKey
		invoice.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeInvoiceRepo) CountByPrefix(_ context.Context, _ string) (int64, error) {
	return f.count, nil
}

func (f *fakeInvoiceRepo) StatsByCreator(_ context.Context, _ uuid.UUID) (model.InvoiceStats, error) {
	return f.stats, nil
}

type fakeUserRepo struct {
	repository.UserRepository
	users map[uuid.UUID]*model.User
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fakeRenderer struct {
	lastHTML string
}

func (f *fakeRenderer) RenderHTML(_ context.Context, html string) ([]byte, error) {
	f.lastHTML = html
	return []byte("%PDF-1.4 fake"), nil
}

type recordingPublisher struct {
	events []string
}

func (r *recordingPublisher) Publish(eventType string, _ interface{}) {
	r.events = append(r.events, eventType)
}

// --- Helpers ---

func validCreateRequest() CreateInvoiceRequest {
	return CreateInvoiceRequest{
		Trip:          model.TripFirst,
		CarNumber:     "WB 12 AB 3456",
		PhoneNumber:   "9876543210",
		Name:          "R. Das",
		Location:      "Riverbank North",
		Wheels:        12,
		Cft:           450.5,
		PaymentMethod: model.PaymentCash,
	}
}

func setupInvoiceService(t *testing.T) (*fakeInvoiceRepo, *fakeUserRepo, *fakeRenderer, *recordingPublisher, InvoiceService, policy.Actor) {
	t.Helper()

	branchID := uuid.New()
	creator := &model.User{ID: uuid.New(), Username: "operator1", BranchID: &branchID}

	invoiceRepo := newFakeInvoiceRepo()
	userRepo := &fakeUserRepo{users: map[uuid.UUID]*model.User{creator.ID: creator}}
	renderer := &fakeRenderer{}
	events := &recordingPublisher{}

	svc := NewInvoiceService(invoiceRepo, userRepo, fakeTxManager{}, renderer, events, nil)
	actor := policy.Actor{ID: creator.ID, Username: creator.Username, Role: model.RoleUser, BranchID: &branchID}

	return invoiceRepo, userRepo, renderer, events, svc, actor
}

// --- Tests ---

func TestCreateInvoiceCollectsEveryInvalidField(t *testing.T) {
	_, _, _, _, svc, actor := setupInvoiceService(t)

	req := validCreateRequest()
	req.Trip = "third trip"
	req.PhoneNumber = "12"
	req.Cft = -1
	req.PaymentStatus = model.PaymentPaid // paid without paid_amount

	_, err := svc.Create(context.Background(), actor, req)
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)

	var names []string
	for _, f := range appErr.Fields {
		names = append(names, f.Field)
	}
	assert.Contains(t, names, "trip")
	assert.Contains(t, names, "phone_number")
	assert.Contains(t, names, "cft")
	assert.Contains(t, names, "paid_amount")
}

func TestCreateInvoiceSnapshotsBranchAndNumbersChallan(t *testing.T) {
	invoiceRepo, _, _, events, svc, actor := setupInvoiceService(t)
	invoiceRepo.count = 41

	resp, err := svc.Create(context.Background(), actor, validCreateRequest())
	require.NoError(t, err)

	prefix := "ECH-" + time.Now().Format("20060102") + "-"
	assert.Equal(t, prefix+"00042", resp.ChallanNo)
	require.NotNil(t, resp.BranchID)
	assert.Equal(t, actor.BranchID.String(), *resp.BranchID)
	assert.Equal(t, model.PaymentPending, resp.PaymentStatus)
	assert.Equal(t, []string{"invoice.created"}, events.events)
}

func TestCreateInvoiceRejectsBadDecimal(t *testing.T) {
	_, _, _, _, svc, actor := setupInvoiceService(t)

	req := validCreateRequest()
	req.TotalCost = "twelve hundred"

	_, err := svc.Create(context.Background(), actor, req)
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "total_cost", appErr.Fields[0].Field)
}

func TestListScopesToActorBranch(t *testing.T) {
	invoiceRepo, _, _, _, svc, actor := setupInvoiceService(t)

	_, _, err := svc.List(context.Background(), actor, InvoiceFilter{Page: 1, Limit: 500})
	require.NoError(t, err)

	require.NotNil(t, invoiceRepo.lastFilter.BranchID)
	assert.Equal(t, *actor.BranchID, *invoiceRepo.lastFilter.BranchID)
	// Oversized limit is clamped, never rejected.
	assert.Equal(t, 100, invoiceRepo.lastFilter.Limit)
}

func TestListUltraAdminSeesAllBranches(t *testing.T) {
	invoiceRepo, _, _, _, svc, _ := setupInvoiceService(t)
	ultra := policy.Actor{ID: uuid.New(), Role: model.RoleUltraAdmin}

	_, _, err := svc.List(context.Background(), ultra, InvoiceFilter{})
	require.NoError(t, err)
	assert.Nil(t, invoiceRepo.lastFilter.BranchID)
}

func TestListBranchlessActorSeesNothing(t *testing.T) {
	_, _, _, _, svc, _ := setupInvoiceService(t)
	orphan := policy.Actor{ID: uuid.New(), Role: model.RoleUser}

	invoices, total, err := svc.List(context.Background(), orphan, InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.Zero(t, total)
}

func TestUpdatePaymentCrossBranchSurfacesAsNotFound(t *testing.T) {
	invoiceRepo, _, _, _, svc, actor := setupInvoiceService(t)

	otherBranch := uuid.New()
	invoice := &model.Invoice{ID: uuid.New(), BranchID: &otherBranch, PaymentStatus: model.PaymentPending}
	invoiceRepo.invoices[invoice.ID] = invoice

	status := model.PaymentPaid
	_, err := svc.UpdatePayment(context.Background(), actor, invoice.ID.String(), UpdatePaymentRequest{PaymentStatus: &status})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperror.StatusOf(err))
}

func TestUpdatePaymentStaleRecordConflicts(t *testing.T) {
	invoiceRepo, _, _, _, svc, actor := setupInvoiceService(t)
	invoiceRepo.staleUpdate = true

	invoice := &model.Invoice{ID: uuid.New(), BranchID: actor.BranchID, PaymentStatus: model.PaymentPending}
	invoiceRepo.invoices[invoice.ID] = invoice

	remarks := "updated"
	_, err := svc.UpdatePayment(context.Background(), actor, invoice.ID.String(), UpdatePaymentRequest{Remarks: &remarks})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperror.StatusOf(err))
}

func TestUpdatePaymentPaidRequiresPositiveAmount(t *testing.T) {
	invoiceRepo, _, _, _, svc, actor := setupInvoiceService(t)

	invoice := &model.Invoice{ID: uuid.New(), BranchID: actor.BranchID, PaymentStatus: model.PaymentPending}
	invoiceRepo.invoices[invoice.ID] = invoice

	status := model.PaymentPaid
	_, err := svc.UpdatePayment(context.Background(), actor, invoice.ID.String(), UpdatePaymentRequest{PaymentStatus: &status})
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "paid_amount", appErr.Fields[0].Field)
}

func TestUpdatePaymentSettlesAndPublishes(t *testing.T) {
	invoiceRepo, _, _, events, svc, actor := setupInvoiceService(t)

	invoice := &model.Invoice{
		ID:            uuid.New(),
		BranchID:      actor.BranchID,
		PaymentMethod: model.PaymentCash,
		PaymentStatus: model.PaymentPending,
	}
	invoiceRepo.invoices[invoice.ID] = invoice

	status := model.PaymentPaid
	amount := "1200.50"
	resp, err := svc.UpdatePayment(context.Background(), actor, invoice.ID.String(), UpdatePaymentRequest{
		PaymentStatus: &status,
		PaidAmount:    &amount,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentPaid, resp.PaymentStatus)
	assert.Contains(t, events.events, "invoice.payment_updated")
	assert.Contains(t, invoiceRepo.lastUpdates, "paid_amount")
}

func TestStatsPassThrough(t *testing.T) {
	invoiceRepo, _, _, _, svc, actor := setupInvoiceService(t)
	invoiceRepo.stats = model.InvoiceStats{TotalEntries: 7, TotalAmount: 9100, TotalPaidCash: 4000, TotalPaidUPI: 5100}

	stats, err := svc.Stats(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, invoiceRepo.stats, stats)
}

func TestStatsEmptyIsZeroes(t *testing.T) {
	_, _, _, _, svc, actor := setupInvoiceService(t)

	stats, err := svc.Stats(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStats{}, stats)
}

func TestGenerateDocument(t *testing.T) {
	invoiceRepo, _, renderer, _, svc, actor := setupInvoiceService(t)

	invoice := &model.Invoice{
		ID:        uuid.New(),
		ChallanNo: "ECH-20260104-00007",
		BranchID:  actor.BranchID,
		CarNumber: "WB 12 AB 3456",
		Wheels:    12,
		Cft:       450.5,
		Name:      "R. Das",
		Location:  "Riverbank North",
		CreatedAt: time.Now(),
	}
	invoiceRepo.invoices[invoice.ID] = invoice

	doc, err := svc.GenerateDocument(context.Background(), actor, invoice.ID.String())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.Filename, "invoice-WB12AB3456-"))
	assert.True(t, strings.HasSuffix(doc.Filename, ".pdf"))
	assert.NotEmpty(t, doc.PDF)
	assert.Contains(t, renderer.lastHTML, "ECH-20260104-00007")
}

func TestGenerateDocumentInvisibleInvoiceIsNotFound(t *testing.T) {
	invoiceRepo, _, _, _, svc, actor := setupInvoiceService(t)

	otherBranch := uuid.New()
	invoice := &model.Invoice{ID: uuid.New(), BranchID: &otherBranch, CreatedAt: time.Now()}
	invoiceRepo.invoices[invoice.ID] = invoice

	_, err := svc.GenerateDocument(context.Background(), actor, invoice.ID.String())
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperror.StatusOf(err))

	_, err = svc.GenerateDocument(context.Background(), actor, "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperror.StatusOf(err))
}
