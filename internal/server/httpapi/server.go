package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/checkout"
)

const defaultSessionTTL = 24 * time.Hour

// Server собирает HTTP-хендлеры публичного API магазина.
type Server struct {
	checkout    checkout.Orchestrator
	catalog     *catalog.Service
	orders      domain.OrderRepository
	sales       domain.SaleRepository
	sessions    domain.SessionStore
	idempotency domain.IdempotencyRepository
	logger      *log.Entry
}

// NewServer создаёт HTTP API сервер.
func NewServer(
	orchestrator checkout.Orchestrator,
	catalogSvc *catalog.Service,
	orders domain.OrderRepository,
	sales domain.SaleRepository,
	sessions domain.SessionStore,
	idempotency domain.IdempotencyRepository,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Server{
		checkout:    orchestrator,
		catalog:     catalogSvc,
		orders:      orders,
		sales:       sales,
		sessions:    sessions,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Router возвращает маршрутизатор API.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /v1/sessions", s.handleDeleteSession)

	mux.HandleFunc("GET /v1/products", s.handleListProducts)
	mux.HandleFunc("GET /v1/products/low-stock", s.handleLowStock)
	mux.HandleFunc("GET /v1/products/{id}", s.handleGetProduct)
	mux.HandleFunc("POST /v1/products", s.handleCreateProduct)
	mux.HandleFunc("PUT /v1/products/{id}", s.handleUpdateProduct)
	mux.HandleFunc("DELETE /v1/products/{id}", s.handleDeleteProduct)

	mux.HandleFunc("POST /v1/purchase", s.handlePurchase)
	mux.HandleFunc("DELETE /v1/orders/{id}", s.handleCancelOrder)
	mux.HandleFunc("GET /v1/orders", s.handleListOrders)
	mux.HandleFunc("GET /v1/orders/my", s.handleMyOrders)

	mux.HandleFunc("GET /v1/sales", s.handleListSales)
	mux.HandleFunc("GET /v1/reports/revenue", s.handleRevenue)
	mux.HandleFunc("GET /v1/reports/top-products", s.handleTopProducts)
	mux.HandleFunc("GET /v1/reports/summary", s.handleSummary)

	return mux
}

// identity извлекает идентичность вызывающего из Bearer-токена.
// Отсутствие токена — не ошибка: операция сама решает, пускать ли анонима.
func (s *Server) identity(r *http.Request) domain.Identity {
	token := bearerToken(r)
	if token == "" {
		return domain.Anonymous()
	}

	ident, err := s.sessions.Identity(r.Context(), token)
	if err != nil {
		return domain.Anonymous()
	}
	return ident
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func (s *Server) requireAdmin(r *http.Request) (domain.Identity, error) {
	ident := s.identity(r)
	if !ident.Authenticated() {
		return ident, domain.ErrUnauthenticated
	}
	if !ident.IsAdmin() {
		return ident, domain.ErrForbidden
	}
	return ident, nil
}

type createSessionRequest struct {
	CustomerID string `json:"customer_id"`
	Role       string `json:"role"`
}

type createSessionResponse struct {
	Token string `json:"token"`
}

// handleCreateSession выдаёт токен сессии. Проверка учётных данных —
// зона внешнего auth-сервиса; здесь фиксируется только привязка
// токена к идентичности.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		writeError(w, domain.ErrCustomerRequired)
		return
	}

	role := domain.Role(req.Role)
	if role != domain.RoleAdmin {
		role = domain.RoleCustomer
	}

	token := uuid.NewString()
	ident := domain.Identity{CustomerID: req.CustomerID, Role: role}
	if err := s.sessions.Put(r.Context(), token, ident, defaultSessionTTL); err != nil {
		s.logger.WithError(err).Error("failed to store session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{Token: token})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	if err := s.sessions.Delete(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
