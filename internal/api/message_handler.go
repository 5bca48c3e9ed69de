package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sungwon/mpmail/internal/delivery"
	"github.com/sungwon/mpmail/internal/provider"
)

const maxMessageBody = 1 << 20

// Sender accepts send requests.
type Sender interface {
	Send(ctx context.Context, msg *provider.Message) delivery.Result
}

// SendMessageHandler handles POST /api/v1/messages. It answers 201 when the
// message was accepted, 400 when it was rejected before any I/O and 502 when
// the provider failed.
func SendMessageHandler(s Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg provider.Message
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody)).Decode(&msg); err != nil {
			respondJSON(w, http.StatusBadRequest, delivery.Result{Error: "validation: invalid JSON body: " + err.Error()})
			return
		}

		res := s.Send(r.Context(), &msg)
		switch {
		case res.Success:
			respondJSON(w, http.StatusCreated, res)
		case res.Rejected():
			respondJSON(w, http.StatusBadRequest, res)
		default:
			respondJSON(w, http.StatusBadGateway, res)
		}
	}
}
