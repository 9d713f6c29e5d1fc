package booking

import "time"

// Origin tags where an appointment's current state came from. Local-pending
// entries carry an unconfirmed mutation and are never authoritative until
// the server confirms.
type Origin string

const (
	OriginRemote       Origin = "remote"
	OriginLocalPending Origin = "local-pending"
)

// Appointment is a booked workshop visit. Start and End are UTC instants;
// wall-clock presentation happens in the schedule's timezone.
type Appointment struct {
	ID           string
	Start        time.Time
	End          time.Time
	CustomerName string
	Phone        string
	Email        string
	Service      string
	PlateNumber  string
	VehicleModel string
	Notes        string
	Status       string
	CancelToken  string
	Origin       Origin
}

// StartInstant implements schedule.Occupant.
func (a *Appointment) StartInstant() time.Time {
	return a.Start
}
