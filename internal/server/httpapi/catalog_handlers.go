package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const defaultLowStockThreshold = 5

func decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

type productPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Stock      int32  `json:"stock"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func toProductPayload(p domain.Product) productPayload {
	return productPayload{
		ID:         p.ID,
		Name:       p.Name,
		PriceMinor: p.PriceMinor,
		Stock:      p.Stock,
		CreatedAt:  p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  p.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	payload := make([]productPayload, 0, len(products))
	for _, p := range products {
		payload = append(payload, toProductPayload(p))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductPayload(product))
}

type createProductRequest struct {
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Stock      int32  `json:"stock"`
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	ident, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	product, err := s.catalog.CreateProduct(r.Context(), ident, req.Name, req.PriceMinor, req.Stock)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductPayload(product))
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	ident, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	product, err := s.catalog.UpdateProduct(r.Context(), ident, domain.Product{
		ID:         r.PathValue("id"),
		Name:       req.Name,
		PriceMinor: req.PriceMinor,
		Stock:      req.Stock,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductPayload(product))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	ident, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.catalog.DeleteProduct(r.Context(), ident, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	ident, err := s.requireAdmin(r)
	if err != nil {
		writeError(w, err)
		return
	}

	threshold := int32(defaultLowStockThreshold)
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid threshold"})
			return
		}
		threshold = int32(parsed)
	}

	products, err := s.catalog.ListLowStock(r.Context(), ident, threshold)
	if err != nil {
		writeError(w, err)
		return
	}

	payload := make([]productPayload, 0, len(products))
	for _, p := range products {
		payload = append(payload, toProductPayload(p))
	}
	writeJSON(w, http.StatusOK, payload)
}
