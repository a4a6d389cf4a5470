package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dborovsky/grandnode/internal/dispatch"
	"github.com/dborovsky/grandnode/internal/domain"
	"github.com/dborovsky/grandnode/internal/service/giftcard"
	"github.com/dborovsky/grandnode/internal/service/returns"
)

// Server — HTTP JSON граница над диспетчером команд и запросов.
// Аутентификация живёт на внешнем шлюзе; покупатель идентифицируется
// полем customer_id запроса.
type Server struct {
	dispatcher *dispatch.Dispatcher
	idem       domain.IdempotencyRepository
	logger     *log.Entry
}

// NewServer конструирует HTTP-границу. idem может быть nil — тогда
// повторная подача одного запроса не дедуплицируется.
func NewServer(dispatcher *dispatch.Dispatcher, idem domain.IdempotencyRepository, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	return &Server{
		dispatcher: dispatcher,
		idem:       idem,
		logger:     logger,
	}
}

// Routes собирает маршруты API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/returns", s.withIdempotency(s.handleSubmitReturn))
	mux.HandleFunc("GET /api/v1/returns", s.handleListReturns)
	mux.HandleFunc("GET /api/v1/returns/{id}", s.handleReturnDetails)
	mux.HandleFunc("GET /api/v1/orders/returnable", s.handleReturnableOrders)
	mux.HandleFunc("GET /api/v1/orders/{orderID}/return-form", s.handleReturnForm)

	mux.HandleFunc("POST /api/v1/giftcards/apply", s.withIdempotency(s.handleApplyGiftCard))
	mux.HandleFunc("POST /api/v1/giftcards/remove", s.withIdempotency(s.handleRemoveGiftCard))

	return mux
}

type submitReturnRequestJSON struct {
	CustomerID              string           `json:"customer_id"`
	OrderID                 string           `json:"order_id"`
	Items                   []returnItemJSON `json:"items"`
	Comments                string           `json:"comments"`
	PickupDate              *time.Time       `json:"pickup_date,omitempty"`
	PickupAddressID         string           `json:"pickup_address_id,omitempty"`
	PickupAddressAttributes []attributeJSON  `json:"pickup_address_attributes,omitempty"`
}

func (s *Server) handleSubmitReturn(r *http.Request, body []byte) (int, any) {
	var req submitReturnRequestJSON
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, errorResponse{Error: "invalid request body"}
	}

	items := make([]returns.ReturnItemForm, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, returns.ReturnItemForm{
			OrderItemID:     item.OrderItemID,
			Qty:             item.Qty,
			Reason:          item.Reason,
			RequestedAction: item.RequestedAction,
		})
	}

	cmd := returns.SubmitReturnRequestCommand{
		CustomerID: req.CustomerID,
		OrderID:    req.OrderID,
		Items:      items,
		Comments:   req.Comments,
		PickupDate: req.PickupDate,
		Address: returns.AddressForm{
			PickupAddressID: req.PickupAddressID,
			Attributes:      attributesFromJSON(req.PickupAddressAttributes),
		},
	}

	result, err := s.dispatcher.Send(r.Context(), cmd)
	if err != nil {
		return s.errorStatus(err, "submit return request")
	}

	rr, ok := result.(domain.ReturnRequest)
	if !ok {
		s.logger.WithField("type", typeName(result)).Error("unexpected submit return response type")
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}

	return http.StatusCreated, returnRequestToJSON(rr)
}

func (s *Server) handleListReturns(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"}, s.logger)
			return
		}
		limit = parsed
	}

	result, err := s.dispatcher.Send(r.Context(), returns.CustomerReturnRequestsQuery{
		CustomerID: customerID,
		Limit:      limit,
	})
	if err != nil {
		status, payload := s.errorStatus(err, "list return requests")
		writeJSON(w, status, payload, s.logger)
		return
	}

	list, ok := result.([]domain.ReturnRequest)
	if !ok {
		s.logger.WithField("type", typeName(result)).Error("unexpected list returns response type")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"}, s.logger)
		return
	}

	items := make([]returnRequestJSON, 0, len(list))
	for _, rr := range list {
		items = append(items, returnRequestToJSON(rr))
	}
	writeJSON(w, http.StatusOK, listReturnsResponse{Returns: items}, s.logger)
}

// handleReturnableOrders отдаёт заказы, по которым покупатель может
// открыть возврат прямо сейчас.
func (s *Server) handleReturnableOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"}, s.logger)
			return
		}
		limit = parsed
	}

	result, err := s.dispatcher.Send(r.Context(), returns.ReturnableOrdersQuery{
		CustomerID: customerID,
		Limit:      limit,
	})
	if err != nil {
		status, payload := s.errorStatus(err, "returnable orders")
		writeJSON(w, status, payload, s.logger)
		return
	}

	list, ok := result.([]domain.Order)
	if !ok {
		s.logger.WithField("type", typeName(result)).Error("unexpected returnable orders response type")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"}, s.logger)
		return
	}

	orders := make([]returnableOrderJSON, 0, len(list))
	for _, order := range list {
		orders = append(orders, returnableOrderToJSON(order))
	}
	writeJSON(w, http.StatusOK, returnableOrdersResponse{Orders: orders}, s.logger)
}

func (s *Server) handleReturnDetails(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.Send(r.Context(), returns.ReturnRequestDetailsQuery{
		CustomerID:      r.URL.Query().Get("customer_id"),
		ReturnRequestID: r.PathValue("id"),
	})
	if err != nil {
		status, payload := s.errorStatus(err, "return request details")
		writeJSON(w, status, payload, s.logger)
		return
	}

	details, ok := result.(returns.ReturnRequestDetails)
	if !ok {
		s.logger.WithField("type", typeName(result)).Error("unexpected details response type")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"}, s.logger)
		return
	}

	writeJSON(w, http.StatusOK, detailsToJSON(details), s.logger)
}

func (s *Server) handleReturnForm(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.Send(r.Context(), returns.ReturnRequestFormQuery{
		CustomerID: r.URL.Query().Get("customer_id"),
		OrderID:    r.PathValue("orderID"),
	})
	if err != nil {
		status, payload := s.errorStatus(err, "return request form")
		writeJSON(w, status, payload, s.logger)
		return
	}

	form, ok := result.(returns.ReturnRequestForm)
	if !ok {
		s.logger.WithField("type", typeName(result)).Error("unexpected form response type")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"}, s.logger)
		return
	}

	writeJSON(w, http.StatusOK, formToJSON(form), s.logger)
}

type applyGiftCardJSON struct {
	CustomerID string `json:"customer_id"`
	CouponCode string `json:"coupon_code"`
}

func (s *Server) handleApplyGiftCard(r *http.Request, body []byte) (int, any) {
	var req applyGiftCardJSON
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, errorResponse{Error: "invalid request body"}
	}

	result, err := s.dispatcher.Send(r.Context(), giftcard.ApplyGiftCardCommand{
		CustomerID: req.CustomerID,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		return s.errorStatus(err, "apply gift card")
	}

	applied, _ := result.(bool)
	return http.StatusOK, giftCardActionResponse{Applied: applied}
}

type removeGiftCardJSON struct {
	CustomerID string `json:"customer_id"`
	GiftCardID string `json:"gift_card_id"`
}

func (s *Server) handleRemoveGiftCard(r *http.Request, body []byte) (int, any) {
	var req removeGiftCardJSON
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, errorResponse{Error: "invalid request body"}
	}

	result, err := s.dispatcher.Send(r.Context(), giftcard.RemoveGiftCardCommand{
		CustomerID: req.CustomerID,
		GiftCardID: req.GiftCardID,
	})
	if err != nil {
		return s.errorStatus(err, "remove gift card")
	}

	removed, _ := result.(bool)
	return http.StatusOK, giftCardActionResponse{Removed: removed}
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
	// Для ошибок валидации формы возврата: true, если покупатель вводил
	// новый адрес самовывоза, а не выбирал сохранённый.
	NewAddressUsed bool `json:"new_address_used,omitempty"`
}

// errorStatus переводит доменную ошибку в HTTP-статус и тело ответа.
// Чужие и несуществующие ресурсы неразличимы и оба дают 404.
func (s *Server) errorStatus(err error, operation string) (int, any) {
	var validationErr *returns.ValidationError
	if errors.As(err, &validationErr) {
		details := make([]string, 0, len(validationErr.Errs))
		for _, e := range validationErr.Errs {
			details = append(details, e.Error())
		}
		return http.StatusUnprocessableEntity, errorResponse{
			Error:          "validation failed",
			Details:        details,
			NewAddressUsed: validationErr.NewAddressUsed,
		}
	}

	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrReturnRequestAlreadyOpen),
		errors.Is(err, domain.ErrGiftCardAlreadyApplied),
		errors.Is(err, domain.ErrCustomerVersionConflict):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrCustomerNotRegistered):
		return http.StatusForbidden, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrReturnNotAllowed),
		errors.Is(err, domain.ErrGiftCardNotUsable),
		errors.Is(err, domain.ErrGiftCardEmpty),
		errors.Is(err, domain.ErrGiftCardConsumed),
		errors.Is(err, domain.ErrReturnCustomerRequired),
		errors.Is(err, domain.ErrReturnOrderRequired):
		return http.StatusUnprocessableEntity, errorResponse{Error: err.Error()}
	default:
		s.logger.WithError(err).WithField("operation", operation).Error("request failed")
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *log.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.WithError(err).Warn("failed to encode response")
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
