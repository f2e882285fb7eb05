package api

import (
	"errors"
	"net/http"

	"github.com/carebook/booking-engine/internal/appointment"
	"github.com/carebook/booking-engine/internal/availability"
	redisclient "github.com/carebook/booking-engine/internal/redis"
	"github.com/carebook/booking-engine/internal/timeslot"
)

// handleServiceError maps domain sentinels onto the HTTP taxonomy. Every
// distinct outcome stays user-explainable; nothing collapses into a bare 500
// unless it really is unexpected.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, timeslot.ErrMalformedTime):
		writeError(w, http.StatusBadRequest, "malformed_time", err.Error())
	case errors.Is(err, timeslot.ErrMalformedDate):
		writeError(w, http.StatusBadRequest, "malformed_date", err.Error())
	case errors.Is(err, availability.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, availability.ErrNoDays):
		writeError(w, http.StatusBadRequest, "no_days", err.Error())
	case errors.Is(err, appointment.ErrPastSlot):
		writeError(w, http.StatusBadRequest, "past_slot", err.Error())
	case errors.Is(err, appointment.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, "invalid_rating", err.Error())

	case errors.Is(err, availability.ErrDoctorNotFound),
		errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, availability.ErrAvailabilityNotFound):
		writeError(w, http.StatusNotFound, "availability_not_found", err.Error())
	case errors.Is(err, availability.ErrDayNotPublished):
		writeError(w, http.StatusNotFound, "date_not_published", err.Error())
	case errors.Is(err, appointment.ErrSlotNotPublished):
		writeError(w, http.StatusNotFound, "slot_not_published", err.Error())

	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrRatingNotAllowed):
		writeError(w, http.StatusConflict, "rating_not_allowed", err.Error())
	case errors.Is(err, appointment.ErrRatingAlreadySet):
		writeError(w, http.StatusConflict, "rating_already_set", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
