package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
)

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n booking.Notification) error {
	l.logger.Info("booking notification",
		zap.String("type", n.Type),
		zap.String("booking_id", n.BookingID.String()),
		zap.String("doctor", n.DoctorName),
		zap.String("doctor_email", n.DoctorEmail),
		zap.String("patient", n.PatientName),
		zap.String("patient_email", n.PatientEmail),
		zap.Time("appointment_at", n.AppointmentAt),
	)
	return nil
}

func (l *LogNotifier) Close() error { return nil }
