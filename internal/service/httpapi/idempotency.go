package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dborovsky/grandnode/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour

	maxRequestBodyBytes = 1 << 20
)

// mutationHandler обрабатывает мутирующий запрос с уже прочитанным телом
// и возвращает HTTP-статус с полезной нагрузкой ответа.
type mutationHandler func(r *http.Request, body []byte) (int, any)

// withIdempotency оборачивает мутирующий обработчик дедупликацией по
// заголовку Idempotency-Key. Без заголовка (или без хранилища ключей)
// запрос обрабатывается напрямую. Повтор с тем же ключом и телом
// возвращает сохранённый ответ; тот же ключ с другим телом — конфликт.
func (s *Server) withIdempotency(handler mutationHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"}, s.logger)
			return
		}

		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if key == "" || s.idem == nil {
			status, payload := handler(r, body)
			writeJSON(w, status, payload, s.logger)
			return
		}

		hash := requestHash(r.Method, r.URL.Path, body)

		if _, err := s.idem.CreateProcessing(key, hash, time.Now().UTC().Add(idempotencyTTL)); err != nil {
			s.replay(w, key, err)
			return
		}

		status, payload := handler(r, body)

		encoded := encodeResponse(payload)
		if status < http.StatusBadRequest {
			err = s.idem.MarkDone(key, encoded, status)
		} else {
			err = s.idem.MarkFailed(key, encoded, status)
		}
		if err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to cache idempotent response")
		}

		writeJSON(w, status, payload, s.logger)
	}
}

// replay отдаёт ответ по уже существующей записи идемпотентности.
func (s *Server) replay(w http.ResponseWriter, key string, createErr error) {
	if errors.Is(createErr, domain.ErrIdempotencyHashMismatch) {
		writeJSON(w, http.StatusConflict,
			errorResponse{Error: "idempotency key is used with different request payload"}, s.logger)
		return
	}
	if !errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists) {
		s.logger.WithError(createErr).WithField("idempotency_key", key).Error("failed to register idempotency key")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"}, s.logger)
		return
	}

	record, err := s.idem.Get(key)
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Error("failed to load idempotency record")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"}, s.logger)
		return
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		writeJSON(w, http.StatusConflict,
			errorResponse{Error: "request with this idempotency key is still being processed"}, s.logger)
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeStored(w, status, record.ResponseBody, s.logger)
	default:
		s.logger.WithField("idempotency_key", key).WithField("status", record.Status).Error("unexpected idempotency record status")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"}, s.logger)
	}
}

// requestHash привязывает ключ идемпотентности к методу, пути и телу,
// чтобы переиспользование ключа с другим запросом было обнаружено.
func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write([]byte(path))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func encodeResponse(payload any) []byte {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

func writeStored(w http.ResponseWriter, status int, body []byte, logger *log.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(body) == 0 {
		return
	}
	if _, err := w.Write(body); err != nil && logger != nil {
		logger.WithError(err).Warn("failed to write cached response")
	}
}
