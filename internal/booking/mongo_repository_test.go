package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// bsonRoundTrip encodes in and decodes it into out the way the driver does.
func bsonRoundTrip(t *testing.T, in, out any) {
	t.Helper()
	raw, err := bson.Marshal(in)
	require.NoError(t, err)
	require.NoError(t, bson.Unmarshal(raw, out))
}

func TestDoctorDocRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	spec := "Neurology"
	doctor := Doctor{
		ID:             uuid.New(),
		Name:           "Dr. N",
		Email:          "n@example.com",
		Specialization: &spec,
		TicketPrice:    75,
		TimeSlots: []WeeklyRule{
			rule(time.Monday, "09:00", "12:00", 30),
			rule(time.Thursday, "14:30", "16:00", 45),
		},
	}

	in := doctorDoc{
		ID:             doctor.ID.String(),
		Name:           doctor.Name,
		Email:          doctor.Email,
		Specialization: doctor.Specialization,
		TicketPrice:    doctor.TicketPrice,
		TimeSlots:      toRuleDocs(doctor.TimeSlots),
		AverageRating:  4.5,
		TotalRating:    2,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var out doctorDoc
	bsonRoundTrip(t, in, &out)

	got, err := out.toDoctor()
	require.NoError(t, err)
	assert.Equal(t, doctor.ID, got.ID)
	assert.Equal(t, doctor.TimeSlots, got.TimeSlots)
	assert.Equal(t, spec, *got.Specialization)
	assert.Nil(t, got.Phone)
	assert.Equal(t, 4.5, got.AverageRating)
	assert.Equal(t, 2, got.TotalRating)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestDoctorDoc_RejectsCorruptDocuments(t *testing.T) {
	valid := doctorDoc{
		ID:        uuid.NewString(),
		TimeSlots: []ruleDoc{{Day: "Monday", StartTime: "09:00", EndTime: "10:00", SlotDurationMinutes: 30}},
	}

	badID := valid
	badID.ID = "not-a-uuid"
	_, err := badID.toDoctor()
	assert.Error(t, err)

	badDay := valid
	badDay.TimeSlots = []ruleDoc{{Day: "Funday", StartTime: "09:00", EndTime: "10:00", SlotDurationMinutes: 30}}
	_, err = badDay.toDoctor()
	assert.ErrorContains(t, err, `invalid weekday "Funday"`)

	badTime := valid
	badTime.TimeSlots = []ruleDoc{{Day: "Monday", StartTime: "9am", EndTime: "10:00", SlotDurationMinutes: 30}}
	_, err = badTime.toDoctor()
	assert.Error(t, err)
}

func TestBookingDocRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	notes := "bring previous scans"
	in := bookingDoc{
		ID:            uuid.NewString(),
		DoctorID:      uuid.NewString(),
		PatientID:     uuid.NewString(),
		AppointmentAt: at,
		Status:        string(StatusConfirmed),
		Active:        true,
		DoctorNotes:   &notes,
		CreatedAt:     at,
		UpdatedAt:     at,
	}

	var out bookingDoc
	bsonRoundTrip(t, in, &out)
	assert.True(t, out.Active)

	got, err := out.toBooking()
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID.String())
	assert.Equal(t, in.DoctorID, got.DoctorID.String())
	assert.Equal(t, in.PatientID, got.PatientID.String())
	assert.True(t, at.Equal(got.AppointmentAt))
	assert.Equal(t, time.UTC, got.AppointmentAt.Location())
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, notes, *got.DoctorNotes)
	assert.Nil(t, got.Prescription)

	for _, field := range []string{"id", "doctor", "patient"} {
		bad := in
		switch field {
		case "id":
			bad.ID = "x"
		case "doctor":
			bad.DoctorID = ""
		case "patient":
			bad.PatientID = "123"
		}
		_, err := bad.toBooking()
		assert.Error(t, err, field)
	}
}

func TestDecodeBooking(t *testing.T) {
	in := bookingDoc{
		ID:            uuid.NewString(),
		DoctorID:      uuid.NewString(),
		PatientID:     uuid.NewString(),
		AppointmentAt: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),
		Status:        string(StatusPending),
		Active:        true,
	}
	got, err := decodeBooking(mongo.NewSingleResultFromDocument(in, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, in.ID, got.ID.String())
}

func TestMapBookingError(t *testing.T) {
	assert.ErrorIs(t, mapBookingError(mongo.ErrNoDocuments), ErrBookingNotFound)

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
	assert.ErrorIs(t, mapBookingError(dup), ErrSlotAlreadyBooked)

	other := errors.New("server selection timeout")
	assert.Same(t, other, mapBookingError(other))
}

func TestReviewDocRoundTrip(t *testing.T) {
	in := reviewDoc{
		ID:         uuid.NewString(),
		DoctorID:   uuid.NewString(),
		PatientID:  uuid.NewString(),
		Rating:     4,
		ReviewText: "Listened carefully",
		CreatedAt:  time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC),
	}
	var out reviewDoc
	bsonRoundTrip(t, in, &out)

	got, err := out.toReview()
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)
	assert.Equal(t, in.ReviewText, got.ReviewText)
	assert.Equal(t, in.DoctorID, got.DoctorID.String())

	out.PatientID = "nope"
	_, err = out.toReview()
	assert.Error(t, err)
}

