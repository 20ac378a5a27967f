package appointment

import "github.com/shopspring/decimal"

// Flat fees keyed on patient history only. Slot kind, doctor, and visit
// reason never enter the calculation, and neither fee can be supplied by a
// caller.
var (
	NewPatientFee       = decimal.RequireFromString("80.00")
	ReturningPatientFee = decimal.RequireFromString("50.00")
)

// historyStatuses are the statuses that make a patient "returning".
var historyStatuses = []AppointmentStatus{StatusBooked, StatusCompleted}

// PriceFor returns the visit fee and initial-visit flag for a patient with
// (or without) prior booked/completed appointments.
func PriceFor(hasHistory bool) (decimal.Decimal, bool) {
	if hasHistory {
		return ReturningPatientFee, false
	}
	return NewPatientFee, true
}
