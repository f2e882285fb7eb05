package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebook/booking-engine/internal/appointment"
	"github.com/carebook/booking-engine/internal/availability"
)

type DayPayload struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

type PublishAvailabilityRequest struct {
	Days []DayPayload `json:"days"`
}

type ReplaceDateRequest struct {
	Slots []string `json:"slots"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID    `json:"doctor_id"`
	Days     []DayPayload `json:"days"`
}

func toAvailabilityResponse(av *availability.Availability) AvailabilityResponse {
	days := make([]DayPayload, 0, len(av.Days))
	for _, d := range av.Days {
		days = append(days, DayPayload{Date: d.Date, Slots: d.Slots})
	}
	return AvailabilityResponse{DoctorID: av.DoctorID, Days: days}
}

type CreateAppointmentRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Reason   string `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RatingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	DoctorID           uuid.UUID `json:"doctor_id"`
	PatientID          uuid.UUID `json:"patient_id"`
	Date               string    `json:"date"`
	Time               string    `json:"time"`
	Status             string    `json:"status"`
	Reason             string    `json:"reason,omitempty"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	Rating             *int      `json:"rating,omitempty"`
	Feedback           *string   `json:"feedback,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Date:               a.Date,
		Time:               a.TimeSlot,
		Status:             string(a.Status),
		Reason:             a.Reason,
		CancellationReason: a.CancellationReason,
		Rating:             a.Rating,
		Feedback:           a.Feedback,
		CreatedAt:          a.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
