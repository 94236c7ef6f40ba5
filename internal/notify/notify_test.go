package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func sampleNotification() booking.Notification {
	return booking.Notification{
		Type:          booking.NotificationBookingCreated,
		BookingID:     uuid.New(),
		DoctorID:      uuid.New(),
		PatientID:     uuid.New(),
		DoctorName:    "Dr. Grey",
		DoctorEmail:   "grey@example.com",
		PatientName:   "Sam",
		AppointmentAt: time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC),
	}
}

func TestKafkaNotifier_PublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaNotifier{writer: w, topic: "booking-notifications", logger: zap.NewNop()}
	n := sampleNotification()

	require.NoError(t, k.Notify(context.Background(), n))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, n.BookingID.String(), string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: "type", Value: []byte("booking.created")}}, msg.Headers)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "booking.created", decoded["type"])
	assert.Equal(t, "Dr. Grey", decoded["doctorName"])
	assert.Equal(t, "2024-05-06T09:30:00Z", decoded["appointmentDateTime"])

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WrapsWriteError(t *testing.T) {
	boom := errors.New("broker unreachable")
	k := &KafkaNotifier{writer: &fakeWriter{err: boom}, topic: "t", logger: zap.NewNop()}

	err := k.Notify(context.Background(), sampleNotification())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "publish booking.created to t")
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewLogNotifier(zap.New(core))

	require.NoError(t, l.Notify(context.Background(), sampleNotification()))
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	assert.Equal(t, "booking notification", entry.Message)
	assert.Equal(t, "booking.created", entry.ContextMap()["type"])
}
