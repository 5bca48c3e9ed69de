package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/sungwon/mpmail/internal/logger"
	"github.com/sungwon/mpmail/internal/queue"
)

const maxDrainBody = 4 << 10

// Drainer claims a batch of queued jobs.
type Drainer interface {
	Drain(ctx context.Context, limit int) (*queue.Batch, error)
}

type drainRequest struct {
	Limit *int `json:"limit"`
}

func (r drainRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Limit,
			validation.NilOrNotEmpty.Error("must be a positive integer"),
			validation.Min(1).Error("must be a positive integer"),
		),
	)
}

// DrainHandler handles POST /queue/drain. The body is optional; when present
// it is {"limit": n} with n > 0.
func DrainHandler(d Drainer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		req, err := decodeDrainRequest(w, r)
		if err != nil {
			respondErrorMessage(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		limit := 0
		if req.Limit != nil {
			limit = *req.Limit
		}
		batch, err := d.Drain(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("drain failed")
			respondErrorMessage(w, http.StatusInternalServerError, "drain_failed", err.Error())
			return
		}
		respondJSON(w, http.StatusOK, batch)
	}
}

func decodeDrainRequest(w http.ResponseWriter, r *http.Request) (drainRequest, error) {
	var req drainRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDrainBody))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, errors.New("request body must be a JSON object like {\"limit\": 10}")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return req, errors.New("request body must contain a single JSON object")
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}
