package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/seatswap/seatswap-backend/api/middleware"
	ticketsvc "github.com/seatswap/seatswap-backend/internal/tickets"
	"github.com/seatswap/seatswap-backend/pkg/db/models"
	"github.com/seatswap/seatswap-backend/pkg/enums"
	pkgerrors "github.com/seatswap/seatswap-backend/pkg/errors"
)

type stubTicketsService struct {
	ticket       *models.Ticket
	tickets      []models.Ticket
	err          error
	lastList     *ticketsvc.ListInput
	lastWithdraw *ticketsvc.WithdrawInput
}

func (s *stubTicketsService) List(ctx context.Context, input ticketsvc.ListInput) (*models.Ticket, error) {
	s.lastList = &input
	return s.ticket, s.err
}

func (s *stubTicketsService) Withdraw(ctx context.Context, input ticketsvc.WithdrawInput) error {
	s.lastWithdraw = &input
	return s.err
}

func (s *stubTicketsService) Get(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	return s.ticket, s.err
}

func (s *stubTicketsService) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Ticket, error) {
	return s.tickets, s.err
}

func asSeller(req *http.Request, sellerID uuid.UUID) *http.Request {
	ctx := middleware.WithUserID(req.Context(), sellerID.String())
	ctx = middleware.WithRole(ctx, "seller")
	return req.WithContext(ctx)
}

func TestListTicketCreatedResponds201(t *testing.T) {
	t.Parallel()

	sellerID := uuid.New()
	eventID := uuid.New()
	svc := &stubTicketsService{ticket: &models.Ticket{
		ID:             uuid.New(),
		SellerID:       sellerID,
		EventID:        eventID,
		PriceCents:     12500,
		FaceValueCents: 9000,
		Status:         enums.TicketStatusAvailable,
	}}
	handler := ListTicket(svc, nil)

	body := `{"event_id":"` + eventID.String() + `","price_cents":12500,"face_value_cents":9000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = asSeller(req, sellerID)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastList == nil {
		t.Fatal("service not called")
	}
	if svc.lastList.SellerID != sellerID || svc.lastList.EventID != eventID {
		t.Fatalf("wrong list input %+v", svc.lastList)
	}

	var envelope struct {
		Data ticketResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != "available" {
		t.Fatalf("wrong status %q", envelope.Data.Status)
	}
	if envelope.Data.PriceCents != 12500 {
		t.Fatalf("wrong price %d", envelope.Data.PriceCents)
	}
}

func TestListTicketRejectsZeroPrice(t *testing.T) {
	t.Parallel()

	svc := &stubTicketsService{}
	handler := ListTicket(svc, nil)

	body := `{"event_id":"` + uuid.NewString() + `","price_cents":0,"face_value_cents":9000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = asSeller(req, uuid.New())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.lastList != nil {
		t.Fatal("service should not be called on invalid payload")
	}
}

func TestWithdrawTicketConflictIs409(t *testing.T) {
	t.Parallel()

	sellerID := uuid.New()
	ticketID := uuid.New()
	svc := &stubTicketsService{err: pkgerrors.New(pkgerrors.CodeConflict, "ticket is reserved or sold")}
	handler := WithdrawTicket(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets/"+ticketID.String()+"/withdraw", nil)
	req = asSeller(req, sellerID)
	req = withChiParam(req, "ticketID", ticketID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastWithdraw == nil || svc.lastWithdraw.TicketID != ticketID || svc.lastWithdraw.SellerID != sellerID {
		t.Fatalf("wrong withdraw input %+v", svc.lastWithdraw)
	}
}

func TestGetTicketInvalidIDIs400(t *testing.T) {
	t.Parallel()

	handler := GetTicket(&stubTicketsService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets/not-a-uuid", nil)
	req = withChiParam(req, "ticketID", "not-a-uuid")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListEventTicketsReturnsAll(t *testing.T) {
	t.Parallel()

	eventID := uuid.New()
	svc := &stubTicketsService{tickets: []models.Ticket{
		{ID: uuid.New(), EventID: eventID, SellerID: uuid.New(), PriceCents: 5000, FaceValueCents: 4000, Status: enums.TicketStatusAvailable},
		{ID: uuid.New(), EventID: eventID, SellerID: uuid.New(), PriceCents: 7000, FaceValueCents: 6000, Status: enums.TicketStatusSold},
	}}
	handler := ListEventTickets(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/"+eventID.String()+"/tickets", nil)
	req = withChiParam(req, "eventID", eventID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data []ticketResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected 2 tickets got %d", len(envelope.Data))
	}
}
