package booking

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// AllStatuses is ordered the way error messages list them.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}

func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Active statuses claim their slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, true
		}
	}
	return 0, false
}

// DefaultSlotDurationMinutes applies when a rule is submitted without a duration.
const DefaultSlotDurationMinutes = 30

// WeeklyRule is a recurring availability window of a doctor.
type WeeklyRule struct {
	Day                 time.Weekday
	Start               TimeOfDay
	End                 TimeOfDay
	SlotDurationMinutes int
}

type weeklyRuleJSON struct {
	Day                 string    `json:"day"`
	StartTime           TimeOfDay `json:"startTime"`
	EndTime             TimeOfDay `json:"endTime"`
	SlotDurationMinutes *int      `json:"slotDurationMinutes,omitempty"`
}

func (r WeeklyRule) MarshalJSON() ([]byte, error) {
	d := r.SlotDurationMinutes
	return json.Marshal(weeklyRuleJSON{
		Day:                 r.Day.String(),
		StartTime:           r.Start,
		EndTime:             r.End,
		SlotDurationMinutes: &d,
	})
}

// UnmarshalJSON fills in DefaultSlotDurationMinutes when the duration is
// omitted. An explicit zero is kept so Validate can reject it.
func (r *WeeklyRule) UnmarshalJSON(data []byte) error {
	var raw weeklyRuleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	day, ok := ParseWeekday(raw.Day)
	if !ok {
		return fmt.Errorf("invalid weekday %q", raw.Day)
	}
	duration := DefaultSlotDurationMinutes
	if raw.SlotDurationMinutes != nil {
		duration = *raw.SlotDurationMinutes
	}
	*r = WeeklyRule{
		Day:                 day,
		Start:               raw.StartTime,
		End:                 raw.EndTime,
		SlotDurationMinutes: duration,
	}
	return nil
}

func (r WeeklyRule) Validate() error {
	if r.Day < time.Sunday || r.Day > time.Saturday {
		return invalidInput("invalid weekday in availability rule")
	}
	if r.SlotDurationMinutes <= 0 {
		return invalidInput("slot duration must be a positive number of minutes (%s %s-%s)", r.Day, r.Start, r.End)
	}
	if r.Start.Minutes() >= r.End.Minutes() {
		return invalidInput("availability start time must be before end time (%s %s-%s)", r.Day, r.Start, r.End)
	}
	return nil
}

type Doctor struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Phone          *string      `json:"phone,omitempty"`
	Specialization *string      `json:"specialization,omitempty"`
	Bio            *string      `json:"bio,omitempty"`
	TicketPrice    float64      `json:"ticketPrice"`
	TimeSlots      []WeeklyRule `json:"timeSlots"`
	AverageRating  float64      `json:"averageRating"`
	TotalRating    int          `json:"totalRating"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Booking struct {
	ID            uuid.UUID `json:"id"`
	DoctorID      uuid.UUID `json:"doctorId"`
	PatientID     uuid.UUID `json:"patientId"`
	AppointmentAt time.Time `json:"appointmentDateTime"`
	Status        Status    `json:"status"`
	Comment       *string   `json:"comment,omitempty"`
	Prescription  *string   `json:"prescription,omitempty"`
	DoctorNotes   *string   `json:"doctorNotes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a patient's rating of a doctor. A patient reviews a doctor once.
type Review struct {
	ID         uuid.UUID `json:"id"`
	DoctorID   uuid.UUID `json:"doctorId"`
	PatientID  uuid.UUID `json:"patientId"`
	Rating     int       `json:"rating"`
	ReviewText string    `json:"reviewText"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DoctorProfile is the signed-in doctor's dashboard view.
type DoctorProfile struct {
	Doctor
	Appointments []Booking `json:"appointments"`
	Reviews      []Review  `json:"reviews"`
}

// roundRating keeps one decimal place of an average rating.
func roundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Availability is the result of a slot query for one doctor and date.
type Availability struct {
	AvailableSlots []string `json:"availableSlots"`
	TicketPrice    float64  `json:"ticketPrice"`
}
