package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

type purchaseRequest struct {
	ProductName string `json:"product_name"`
	Qty         int32  `json:"qty"`
}

type saleResponse struct {
	SaleID      string `json:"sale_id"`
	OrderID     string `json:"order_id"`
	ProductName string `json:"product_name"`
	Qty         int32  `json:"qty"`
	TotalMinor  int64  `json:"total_minor"`
	CreatedAt   string `json:"created_at"`
}

func toSaleResponse(sale domain.Sale) saleResponse {
	return saleResponse{
		SaleID:      sale.ID,
		OrderID:     sale.OrderID,
		ProductName: sale.ProductName,
		Qty:         sale.Qty,
		TotalMinor:  sale.TotalMinor,
		CreatedAt:   sale.CreatedAt.Format(time.RFC3339Nano),
	}
}

// handlePurchase проводит покупку. Заголовок Idempotency-Key защищает от
// повторной обработки одного и того же запроса: повтор с тем же ключом
// возвращает сохранённый ответ.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	ident := s.identity(r)
	if !ident.Authenticated() {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	var req purchaseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if key == "" {
		// Без ключа запрос обрабатывается напрямую.
		s.executePurchase(w, r, ident, req)
		return
	}

	requestHash := hashPurchaseRequest(ident, body)
	if _, err := s.idempotency.CreateProcessing(key, requestHash, time.Time{}); err != nil {
		s.replayOrReject(w, key, requestHash, err)
		return
	}

	status, payload := s.runPurchase(r, ident, req)
	if status < http.StatusInternalServerError && status != http.StatusConflict {
		if markErr := s.idempotency.MarkDone(key, payload, status); markErr != nil {
			s.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to mark idempotency key done")
		}
	} else {
		if markErr := s.idempotency.MarkFailed(key, payload, status); markErr != nil {
			s.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to mark idempotency key failed")
		}
	}

	writeRaw(w, status, payload)
}

func (s *Server) executePurchase(w http.ResponseWriter, r *http.Request, ident domain.Identity, req purchaseRequest) {
	status, payload := s.runPurchase(r, ident, req)
	writeRaw(w, status, payload)
}

// runPurchase возвращает готовые статус и тело ответа, чтобы их можно было
// сохранить для идемпотентного повтора.
func (s *Server) runPurchase(r *http.Request, ident domain.Identity, req purchaseRequest) (int, []byte) {
	sale, err := s.checkout.Purchase(r.Context(), ident, req.ProductName, req.Qty)
	if err != nil {
		status := statusForError(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
		payload, _ := json.Marshal(errorBody{Error: msg})
		return status, payload
	}

	payload, _ := json.Marshal(toSaleResponse(sale))
	return http.StatusCreated, payload
}

// replayOrReject обрабатывает повторное появление idempotency-ключа.
func (s *Server) replayOrReject(w http.ResponseWriter, key, requestHash string, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeError(w, createErr)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		record, err := s.idempotency.Get(key)
		if err != nil {
			writeError(w, err)
			return
		}
		if record.Status == domain.IdempotencyStatusProcessing {
			writeJSON(w, http.StatusConflict, errorBody{Error: "request is already being processed"})
			return
		}
		writeRaw(w, record.HTTPStatus, record.ResponseBody)
	default:
		writeError(w, createErr)
	}
}

func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func hashPurchaseRequest(ident domain.Identity, body []byte) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\n%s", ident.CustomerID, body))
	return hex.EncodeToString(sum[:])
}

type cancelledOrderResponse struct {
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	Qty         int32  `json:"qty"`
	OrderedAt   string `json:"ordered_at"`
	CancelledAt string `json:"cancelled_at"`
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ident := s.identity(r)
	if !ident.Authenticated() {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	snapshot, err := s.checkout.Cancel(r.Context(), ident, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cancelledOrderResponse{
		OrderID:     snapshot.OrderID,
		ProductID:   snapshot.ProductID,
		Qty:         snapshot.Qty,
		OrderedAt:   snapshot.OrderedAt.Format(time.RFC3339Nano),
		CancelledAt: snapshot.CancelledAt.Format(time.RFC3339Nano),
	})
}
