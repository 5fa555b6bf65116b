package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"prtrack/internal/types"
)

// HandleTriggerNotification accepts a status-transition trigger and runs the
// notification pipeline. Duplicates return 200 with duplicate=true. In async
// mode the validated trigger is enqueued for the notify worker and the call
// returns 202 without waiting for delivery.
func (s *Server) HandleTriggerNotification(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTrigger(w, r)
	if !ok {
		return
	}

	if s.Config.Server.AsyncDispatch && s.Publisher != nil {
		msg := types.NotificationMessage{
			TriggerRequest: *req,
			TraceID:        types.GetRequestID(r.Context()),
		}
		if err := s.Publisher.Publish(r.Context(), msg); err != nil {
			Error(w, r, err)
			return
		}
		JSON(w, r, http.StatusAccepted, APIResponse{Data: map[string]bool{"queued": true}})
		return
	}

	result, err := s.Notifier.Process(r.Context(), *req)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: result})
}

// HandleRetryNotification re-runs delivery for a transition whose prior
// attempt failed. The payload is the same trigger shape; a sent or in-flight
// entry returns 409 and a never-attempted transition returns 404.
func (s *Server) HandleRetryNotification(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTrigger(w, r)
	if !ok {
		return
	}

	result, err := s.Notifier.Retry(r.Context(), *req)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: result})
}

// HandleGetNotification returns the delivery record for a (PR, transition)
// pair. The transition key is passed as the "transition" query parameter,
// e.g. ?transition=SUBMITTED->PENDING_APPROVAL.
func (s *Server) HandleGetNotification(w http.ResponseWriter, r *http.Request) {
	prID := chi.URLParam(r, "prID")
	transitionKey := r.URL.Query().Get("transition")
	if transitionKey == "" {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"the transition query parameter is required",
			nil,
		))
		return
	}

	entry, err := s.Notifier.Status(r.Context(), prID, transitionKey)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: entry})
}

// decodeTrigger reads and validates the canonical trigger payload. On failure
// it writes the error response and returns ok=false.
func (s *Server) decodeTrigger(w http.ResponseWriter, r *http.Request) (*types.TriggerRequest, bool) {
	var req types.TriggerRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return nil, false
	}

	if err := s.validate.Struct(req); err != nil {
		Error(w, r, mapValidationError(err))
		return nil, false
	}

	return &req, true
}

// mapValidationError translates validator failures into a 400 AppError with
// the offending fields listed in details.
func mapValidationError(err error) *types.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Namespace())
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"request payload failed validation",
			err,
			map[string]any{"fields": fields},
		)
	}
	return types.NewAppError(
		types.ErrCodeValidationMissingField,
		"request payload failed validation",
		err,
	)
}
