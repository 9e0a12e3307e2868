package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

type orderViewPayload struct {
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	ProductName string `json:"product_name"`
	Qty         int32  `json:"qty"`
	TotalMinor  int64  `json:"total_minor"`
	CreatedAt   string `json:"created_at"`
}

func toOrderViewPayload(view domain.OrderView) orderViewPayload {
	return orderViewPayload{
		OrderID:     view.ID,
		CustomerID:  view.CustomerID,
		ProductName: view.ProductName,
		Qty:         view.Qty,
		TotalMinor:  view.TotalMinor,
		CreatedAt:   view.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	views, err := s.orders.ListAll(limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}

	payload := make([]orderViewPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, toOrderViewPayload(view))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	ident := s.identity(r)
	if !ident.Authenticated() {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	views, err := s.orders.ListByCustomer(ident.CustomerID, limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}

	payload := make([]orderViewPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, toOrderViewPayload(view))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	sales, err := s.sales.List(limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}

	payload := make([]saleResponse, 0, len(sales))
	for _, sale := range sales {
		payload = append(payload, toSaleResponse(sale))
	}
	writeJSON(w, http.StatusOK, payload)
}

type revenueResponse struct {
	RevenueMinor int64 `json:"revenue_minor"`
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	total, err := s.sales.RevenueTotal()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revenueResponse{RevenueMinor: total})
}

type topProductPayload struct {
	ProductName string `json:"product_name"`
	TotalQty    int64  `json:"total_qty"`
}

func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	top, err := s.sales.TopProducts(limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}

	payload := make([]topProductPayload, 0, len(top))
	for _, ps := range top {
		payload = append(payload, topProductPayload{
			ProductName: ps.ProductName,
			TotalQty:    ps.TotalQty,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

type summaryResponse struct {
	Products   int64 `json:"products"`
	StockTotal int64 `json:"stock_total"`
	Orders     int64 `json:"orders"`
	Sales      int64 `json:"sales"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	summary, err := s.sales.Summary()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Products:   summary.Products,
		StockTotal: summary.StockTotal,
		Orders:     summary.Orders,
		Sales:      summary.Sales,
	})
}
