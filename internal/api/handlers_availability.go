package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebook/booking-engine/internal/availability"
)

// AvailabilityService is the slice of the availability service the handlers
// consume.
type AvailabilityService interface {
	Publish(ctx context.Context, doctorID uuid.UUID, days []availability.DayInput) (*availability.Availability, error)
	ReplaceDate(ctx context.Context, doctorID uuid.UUID, date string, slots []string) (*availability.Availability, error)
	Raw(ctx context.Context, doctorID uuid.UUID) (*availability.Availability, error)
	RemoveDate(ctx context.Context, doctorID uuid.UUID, date string) error
	VisibleCalendar(ctx context.Context, doctorID uuid.UUID) (*availability.Availability, error)
}

func publishAvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())

		var req PublishAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		days := make([]availability.DayInput, 0, len(req.Days))
		for _, d := range req.Days {
			days = append(days, availability.DayInput{Date: d.Date, Slots: d.Slots})
		}

		av, err := svc.Publish(r.Context(), actor.ID, days)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}

func replaceAvailabilityDateHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		date := chi.URLParam(r, "date")

		var req ReplaceDateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		av, err := svc.ReplaceDate(r.Context(), actor.ID, date, req.Slots)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}

func rawAvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())

		av, err := svc.Raw(r.Context(), actor.ID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}

func removeAvailabilityDateHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		date := chi.URLParam(r, "date")

		if err := svc.RemoveDate(r.Context(), actor.ID, date); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "date": date})
	}
}

// visibleAvailabilityHandler is the patient-facing read: every published day
// with its slots already filtered down to what is still bookable right now.
func visibleAvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		av, err := svc.VisibleCalendar(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}
