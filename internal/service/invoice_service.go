package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"echallan-backend/internal/model"
	"echallan-backend/internal/policy"
	"echallan-backend/internal/render"
	"echallan-backend/internal/repository"
	"echallan-backend/internal/websocket"
	"echallan-backend/pkg/apperror"
	"echallan-backend/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// cargoType is fixed for this deployment: the operation only hauls sand.
const cargoType = "Sand"

var phonePattern = regexp.MustCompile(`^[0-9]{8,15}$`)

// --- DTOs ---

type CreateInvoiceRequest struct {
	Trip          string  `json:"trip" binding:"required"`
	PoliceStation string  `json:"police_station"`
	CarNumber     string  `json:"car_number" binding:"required"`
	PhoneNumber   string  `json:"phone_number" binding:"required"`
	Name          string  `json:"name" binding:"required"`
	Location      string  `json:"location" binding:"required"`
	Wheels        int     `json:"wheels"`
	Cft           float64 `json:"cft"`
	TotalCost     string  `json:"total_cost"`
	PaymentMethod string  `json:"payment_method" binding:"required"`
	PaidAmount    string  `json:"paid_amount"`
	PaymentStatus string  `json:"payment_status"`
	Remarks       string  `json:"remarks"`
}

// UpdatePaymentRequest carries only the payment fields; nil pointers leave the
// stored value untouched.
type UpdatePaymentRequest struct {
	PaymentMethod *string `json:"payment_method"`
	PaidAmount    *string `json:"paid_amount"`
	PaymentStatus *string `json:"payment_status"`
	TotalCost     *string `json:"total_cost"`
	Remarks       *string `json:"remarks"`
}

type InvoiceFilter struct {
	PaymentStatus string
	Trip          string
	CarNumber     string
	Page          int
	Limit         int
}

type InvoiceResponse struct {
	ID            string  `json:"id"`
	ChallanNo     string  `json:"challan_no"`
	CreatedByID   string  `json:"created_by_id"`
	CreatedByName string  `json:"created_by_name"`
	BranchID      *string `json:"branch_id"`
	BranchName    string  `json:"branch_name,omitempty"`
	Trip          string  `json:"trip"`
	PoliceStation string  `json:"police_station"`
	CarNumber     string  `json:"car_number"`
	PhoneNumber   string  `json:"phone_number"`
	Name          string  `json:"name"`
	Location      string  `json:"location"`
	Wheels        int     `json:"wheels"`
	Cft           float64 `json:"cft"`
	TotalCost     *string `json:"total_cost"`
	PaymentMethod string  `json:"payment_method"`
	PaidAmount    *string `json:"paid_amount"`
	PaymentStatus string  `json:"payment_status"`
	Remarks       string  `json:"remarks"`
	ObjectKey     *string `json:"object_key"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// DocumentResponse is the rendered challan artifact.
type DocumentResponse struct {
	Filename string
	PDF      []byte
}

// --- Interface ---

type InvoiceService interface {
	Create(ctx context.Context, actor policy.Actor, req CreateInvoiceRequest) (InvoiceResponse, error)
	List(ctx context.Context, actor policy.Actor, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	UpdatePayment(ctx context.Context, actor policy.Actor, invoiceID string, req UpdatePaymentRequest) (InvoiceResponse, error)
	Stats(ctx context.Context, actor policy.Actor) (model.InvoiceStats, error)
	GenerateDocument(ctx context.Context, actor policy.Actor, invoiceID string) (DocumentResponse, error)
}

type invoiceService struct {
	invoiceRepo repository.InvoiceRepository
	userRepo    repository.UserRepository
	txManager   repository.TransactionManager
	renderer    render.PDFRenderer
	events      EventPublisher
	logger      *zap.Logger
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	renderer render.PDFRenderer,
	events EventPublisher,
	logger *zap.Logger,
) InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		userRepo:    userRepo,
		txManager:   txManager,
		renderer:    renderer,
		events:      events,
		logger:      logger,
	}
}

// --- Implementation ---

func (s *invoiceService) Create(ctx context.Context, actor policy.Actor, req CreateInvoiceRequest) (InvoiceResponse, error) {
	var fields []apperror.FieldError
	invalid := func(field, reason string) {
		fields = append(fields, apperror.FieldError{Field: field, Reason: reason})
	}

	if req.Trip != model.TripFirst && req.Trip != model.TripSecond {
		invalid("trip", fmt.Sprintf("must be %q or %q", model.TripFirst, model.TripSecond))
	}
	if req.PaymentMethod != model.PaymentUPI && req.PaymentMethod != model.PaymentCash {
		invalid("payment_method", fmt.Sprintf("must be %q or %q", model.PaymentUPI, model.PaymentCash))
	}
	status := req.PaymentStatus
	if status == "" {
		status = model.PaymentPending
	}
	if status != model.PaymentPaid && status != model.PaymentPending {
		invalid("payment_status", fmt.Sprintf("must be %q or %q", model.PaymentPaid, model.PaymentPending))
	}
	if req.Wheels < 0 {
		invalid("wheels", "must not be negative")
	}
	if req.Cft < 0 {
		invalid("cft", "must not be negative")
	}
	if !phonePattern.MatchString(req.PhoneNumber) {
		invalid("phone_number", "must be 8 to 15 digits")
	}
	if len(req.CarNumber) > 20 {
		invalid("car_number", "must be at most 20 characters")
	}
	if len(req.Name) > 255 {
		invalid("name", "must be at most 255 characters")
	}
	if len(req.Location) > 255 {
		invalid("location", "must be at most 255 characters")
	}

	totalCost := parseOptionalAmount(req.TotalCost, "total_cost", invalid)
	paidAmount := parseOptionalAmount(req.PaidAmount, "paid_amount", invalid)

	if status == model.PaymentPaid && (paidAmount == nil || !paidAmount.IsPositive()) {
		invalid("paid_amount", "must be set and positive when payment_status is paid")
	}

	if len(fields) > 0 {
		return InvoiceResponse{}, apperror.Validation(fields)
	}

	// Branch is snapshotted from the creator's current assignment; later
	// reassignment of the user leaves existing challans in place.
	creator, err := s.userRepo.GetByID(ctx, actor.ID)
	if err != nil {
		return InvoiceResponse{}, apperror.Unauthorized("unknown user").WithCause(err)
	}

	challanNo, err := s.generateChallanNo(ctx)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to generate challan number: %w", err)
	}

	invoice := model.Invoice{
		ChallanNo:     challanNo,
		CreatedByID:   creator.ID,
		BranchID:      creator.BranchID,
		Trip:          req.Trip,
		PoliceStation: req.PoliceStation,
		CarNumber:     req.CarNumber,
		PhoneNumber:   req.PhoneNumber,
		Name:          req.Name,
		Location:      req.Location,
		Wheels:        req.Wheels,
		Cft:           req.Cft,
		TotalCost:     totalCost,
		PaymentMethod: req.PaymentMethod,
		PaidAmount:    paidAmount,
		PaymentStatus: status,
		Remarks:       req.Remarks,
	}

	if err := s.invoiceRepo.Create(ctx, &invoice); err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to create invoice: %w", err)
	}

	reloaded, err := s.invoiceRepo.FindByID(ctx, invoice.ID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to reload invoice: %w", err)
	}

	s.events.Publish(websocket.EventInvoiceCreated, map[string]string{
		"invoice_id": reloaded.ID.String(),
		"challan_no": reloaded.ChallanNo,
	})

	return toInvoiceResponse(*reloaded), nil
}

func (s *invoiceService) List(ctx context.Context, actor policy.Actor, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	params := pagination.FromValues(filter.Page, filter.Limit)

	repoFilter := repository.InvoiceListFilter{
		PaymentStatus: filter.PaymentStatus,
		Trip:          filter.Trip,
		CarNumber:     filter.CarNumber,
		Page:          params.Page,
		Limit:         params.Limit,
	}

	if !policy.SeesAllBranches(actor) {
		if actor.BranchID == nil {
			// Branch-less, unprivileged actors see nothing.
			return []InvoiceResponse{}, 0, nil
		}
		repoFilter.BranchID = actor.BranchID
	}

	invoices, total, err := s.invoiceRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	result := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		result = append(result, toInvoiceResponse(inv))
	}
	return result, total, nil
}

func (s *invoiceService) UpdatePayment(ctx context.Context, actor policy.Actor, invoiceID string, req UpdatePaymentRequest) (InvoiceResponse, error) {
	id, err := uuid.Parse(invoiceID)
	if err != nil {
		return InvoiceResponse{}, apperror.NotFound("invoice not found")
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, findErr := s.invoiceRepo.FindByID(txCtx, id)
		if findErr != nil {
			return apperror.NotFound("invoice not found")
		}
		if !policy.CanViewInvoice(actor, invoice) {
			// Cross-branch probing must not learn the record exists.
			return apperror.NotFound("invoice not found")
		}

		updates, validationErr := buildPaymentUpdates(invoice, req)
		if validationErr != nil {
			return validationErr
		}
		if len(updates) == 0 {
			return apperror.BadRequest("no payment fields to update")
		}

		if updateErr := s.invoiceRepo.UpdatePayment(txCtx, invoice.ID, invoice.UpdatedAt, updates); updateErr != nil {
			if updateErr == repository.ErrStaleRecord {
				return apperror.Conflict("invoice was modified concurrently, re-fetch and retry")
			}
			return fmt.Errorf("failed to update invoice: %w", updateErr)
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

	s.events.Publish(websocket.EventInvoicePaymentUpdated, map[string]string{
		"invoice_id":     reloaded.ID.String(),
		"payment_status": reloaded.PaymentStatus,
	})

	return toInvoiceResponse(*reloaded), nil
}

func (s *invoiceService) Stats(ctx context.Context, actor policy.Actor) (model.InvoiceStats, error) {
	stats, err := s.invoiceRepo.StatsByCreator(ctx, actor.ID)
	if err != nil {
		return model.InvoiceStats{}, fmt.Errorf("failed to aggregate statistics: %w", err)
	}
	return stats, nil
}

func (s *invoiceService) GenerateDocument(ctx context.Context, actor policy.Actor, invoiceID string) (DocumentResponse, error) {
	id, err := uuid.Parse(invoiceID)
	if err != nil {
		return DocumentResponse{}, apperror.NotFound("invoice not found")
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return DocumentResponse{}, apperror.NotFound("invoice not found")
	}
	if !policy.CanViewInvoice(actor, invoice) {
		return DocumentResponse{}, apperror.NotFound("invoice not found")
	}

	// Rendering is read-only with respect to the invoice row; a failure here
	// leaves no trace on the record.
	token := strings.SplitN(uuid.NewString(), "-", 2)[0]

	payload := render.NewQRPayload(time.Now(), invoice.ChallanNo, invoice.CarNumber, cargoType, invoice.Wheels, invoice.Cft)
	qrPNG, err := render.EncodeQR(payload)
	if err != nil {
		return DocumentResponse{}, apperror.Upstream("failed to encode qr", err)
	}

	html, err := render.RenderChallanHTML(render.ChallanData{
		ChallanNo:     invoice.ChallanNo,
		DateTime:      invoice.CreatedAt.Format("02-01-2006 15:04"),
		CarNumber:     invoice.CarNumber,
		Wheels:        invoice.Wheels,
		Location:      invoice.Location,
		Cft:           invoice.Cft,
		PoliceStation: invoice.PoliceStation,
		Consignee:     invoice.Name,
		Token:         token,
	}, qrPNG)
	if err != nil {
		return DocumentResponse{}, fmt.Errorf("failed to render challan template: %w", err)
	}

	pdf, err := s.renderer.RenderHTML(ctx, html)
	if err != nil {
		return DocumentResponse{}, apperror.Upstream("failed to render pdf", err)
	}

	filename := fmt.Sprintf("invoice-%s-%s.pdf", strings.ReplaceAll(invoice.CarNumber, " ", ""), token)
	return DocumentResponse{Filename: filename, PDF: pdf}, nil
}

// generateChallanNo issues the next per-day serial, e.g. ECH-20260829-00042.
func (s *invoiceService) generateChallanNo(ctx context.Context) (string, error) {
	today := time.Now().Format("20060102")
	prefix := "ECH-" + today + "-"

	count, err := s.invoiceRepo.CountByPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

// --- Helpers ---

func parseOptionalAmount(raw, field string, invalid func(field, reason string)) *decimal.Decimal {
	if raw == "" {
		return nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		invalid(field, "must be a decimal number")
		return nil
	}
	if amount.IsNegative() {
		invalid(field, "must not be negative")
		return nil
	}
	return &amount
}

// buildPaymentUpdates validates the partial payment update against the stored
// record and produces the column map. Every invalid field is reported.
func buildPaymentUpdates(invoice *model.Invoice, req UpdatePaymentRequest) (map[string]interface{}, error) {
	var fields []apperror.FieldError
	invalid := func(field, reason string) {
		fields = append(fields, apperror.FieldError{Field: field, Reason: reason})
	}

	updates := map[string]interface{}{}

	method := invoice.PaymentMethod
	if req.PaymentMethod != nil {
		method = *req.PaymentMethod
		if method != model.PaymentUPI && method != model.PaymentCash {
			invalid("payment_method", fmt.Sprintf("must be %q or %q", model.PaymentUPI, model.PaymentCash))
		} else {
			updates["payment_method"] = method
		}
	}

	status := invoice.PaymentStatus
	if req.PaymentStatus != nil {
		status = *req.PaymentStatus
		if status != model.PaymentPaid && status != model.PaymentPending {
			invalid("payment_status", fmt.Sprintf("must be %q or %q", model.PaymentPaid, model.PaymentPending))
		} else {
			updates["payment_status"] = status
		}
	}

	paidAmount := invoice.PaidAmount
	if req.PaidAmount != nil {
		if amount := parseOptionalAmount(*req.PaidAmount, "paid_amount", invalid); amount != nil {
			paidAmount = amount
			updates["paid_amount"] = *amount
		}
	}

	if req.TotalCost != nil {
		if amount := parseOptionalAmount(*req.TotalCost, "total_cost", invalid); amount != nil {
			updates["total_cost"] = *amount
		}
	}

	if req.Remarks != nil {
		updates["remarks"] = *req.Remarks
	}

	// Payment consistency must hold for the record as it will be stored.
	if status == model.PaymentPaid && (paidAmount == nil || !paidAmount.IsPositive()) {
		invalid("paid_amount", "must be set and positive when payment_status is paid")
	}

	if len(fields) > 0 {
		return nil, apperror.Validation(fields)
	}
	return updates, nil
}

// --- Mapping ---

func toInvoiceResponse(inv model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID.String(),
		ChallanNo:     inv.ChallanNo,
		CreatedByID:   inv.CreatedByID.String(),
		Trip:          inv.Trip,
		PoliceStation: inv.PoliceStation,
		CarNumber:     inv.CarNumber,
		PhoneNumber:   inv.PhoneNumber,
		Name:          inv.Name,
		Location:      inv.Location,
		Wheels:        inv.Wheels,
		Cft:           inv.Cft,
		PaymentMethod: inv.PaymentMethod,
		PaymentStatus: inv.PaymentStatus,
		Remarks:       inv.Remarks,
		ObjectKey:     inv.ObjectKey,
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.Format(time.RFC3339),
	}

	if inv.CreatedBy != nil {
		resp.CreatedByName = strings.TrimSpace(inv.CreatedBy.Username)
	}
	if inv.BranchID != nil {
		id := inv.BranchID.String()
		resp.BranchID = &id
	}
	if inv.Branch != nil {
		resp.BranchName = inv.Branch.Name
	}
	if inv.TotalCost != nil {
		v := inv.TotalCost.StringFixed(2)
		resp.TotalCost = &v
	}
	if inv.PaidAmount != nil {
		v := inv.PaidAmount.StringFixed(2)
		resp.PaidAmount = &v
	}

	return resp
}
