package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ Repository = (*MongoRepository)(nil)

// MongoRepository stores doctors, patients and bookings as documents keyed by
// UUID strings. Bookings carry a denormalised "active" flag so a partial
// unique index can cover pending and confirmed bookings only.
type MongoRepository struct {
	doctors  *mongo.Collection
	patients *mongo.Collection
	bookings *mongo.Collection
	reviews  *mongo.Collection
	events   *mongo.Collection
	now      func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		doctors:  db.Collection("doctors"),
		patients: db.Collection("patients"),
		bookings: db.Collection("bookings"),
		reviews:  db.Collection("reviews"),
		events:   db.Collection("event_logs"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the indexes the repository relies on. Safe to call on
// every start.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.bookings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "appointmentDateTime", Value: 1}},
			Options: options.Index().
				SetName(activeSlotIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "appointmentDateTime", Value: -1}}},
		{Keys: bson.D{{Key: "appointmentDateTime", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create booking indexes: %w", err)
	}

	_, err = r.doctors.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create doctor indexes: %w", err)
	}

	_, err = r.reviews.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "doctorId", Value: 1}, {Key: "patientId", Value: 1}},
			Options: options.Index().SetName(reviewAuthorIndex).SetUnique(true),
		},
		{Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create review indexes: %w", err)
	}
	return nil
}

// Documents

type ruleDoc struct {
	Day                 string `bson:"day"`
	StartTime           string `bson:"startTime"`
	EndTime             string `bson:"endTime"`
	SlotDurationMinutes int    `bson:"slotDurationMinutes"`
}

type doctorDoc struct {
	ID             string    `bson:"_id"`
	Name           string    `bson:"name"`
	Email          string    `bson:"email"`
	Phone          *string   `bson:"phone,omitempty"`
	Specialization *string   `bson:"specialization,omitempty"`
	Bio            *string   `bson:"bio,omitempty"`
	TicketPrice    float64   `bson:"ticketPrice"`
	TimeSlots      []ruleDoc `bson:"timeSlots"`
	AverageRating  float64   `bson:"averageRating"`
	TotalRating    int       `bson:"totalRating"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

type patientDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     *string   `bson:"email,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type bookingDoc struct {
	ID            string    `bson:"_id"`
	DoctorID      string    `bson:"doctorId"`
	PatientID     string    `bson:"patientId"`
	AppointmentAt time.Time `bson:"appointmentDateTime"`
	Status        string    `bson:"status"`
	Active        bool      `bson:"active"`
	Comment       *string   `bson:"comment,omitempty"`
	Prescription  *string   `bson:"prescription,omitempty"`
	DoctorNotes   *string   `bson:"doctorNotes,omitempty"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

type reviewDoc struct {
	ID         string    `bson:"_id"`
	DoctorID   string    `bson:"doctorId"`
	PatientID  string    `bson:"patientId"`
	Rating     int       `bson:"rating"`
	ReviewText string    `bson:"reviewText"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

type eventDoc struct {
	EventType string    `bson:"eventType"`
	BookingID *string   `bson:"bookingId,omitempty"`
	Payload   string    `bson:"payload,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toRuleDocs(rules []WeeklyRule) []ruleDoc {
	out := make([]ruleDoc, 0, len(rules))
	for _, r := range rules {
		out = append(out, ruleDoc{
			Day:                 r.Day.String(),
			StartTime:           r.Start.String(),
			EndTime:             r.End.String(),
			SlotDurationMinutes: r.SlotDurationMinutes,
		})
	}
	return out
}

func (d doctorDoc) toDoctor() (*Doctor, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("doctor id %q: %w", d.ID, err)
	}
	doc := &Doctor{
		ID:             id,
		Name:           d.Name,
		Email:          d.Email,
		Phone:          d.Phone,
		Specialization: d.Specialization,
		Bio:            d.Bio,
		TicketPrice:    d.TicketPrice,
		TimeSlots:      make([]WeeklyRule, 0, len(d.TimeSlots)),
		AverageRating:  d.AverageRating,
		TotalRating:    d.TotalRating,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, rd := range d.TimeSlots {
		day, ok := ParseWeekday(rd.Day)
		if !ok {
			return nil, fmt.Errorf("doctor %s: invalid weekday %q", d.ID, rd.Day)
		}
		start, err := ParseTimeOfDay(rd.StartTime)
		if err != nil {
			return nil, fmt.Errorf("doctor %s: %w", d.ID, err)
		}
		end, err := ParseTimeOfDay(rd.EndTime)
		if err != nil {
			return nil, fmt.Errorf("doctor %s: %w", d.ID, err)
		}
		doc.TimeSlots = append(doc.TimeSlots, WeeklyRule{
			Day:                 day,
			Start:               start,
			End:                 end,
			SlotDurationMinutes: rd.SlotDurationMinutes,
		})
	}
	return doc, nil
}

func (p patientDoc) toPatient() (*Patient, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("patient id %q: %w", p.ID, err)
	}
	return &Patient{ID: id, Name: p.Name, Email: p.Email, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}, nil
}

func (b bookingDoc) toBooking() (*Booking, error) {
	var ids [3]uuid.UUID
	for i, raw := range []string{b.ID, b.DoctorID, b.PatientID} {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("booking %s: bad id %q: %w", b.ID, raw, err)
		}
		ids[i] = id
	}
	return &Booking{
		ID:            ids[0],
		DoctorID:      ids[1],
		PatientID:     ids[2],
		AppointmentAt: b.AppointmentAt.UTC(),
		Status:        Status(b.Status),
		Comment:       b.Comment,
		Prescription:  b.Prescription,
		DoctorNotes:   b.DoctorNotes,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}, nil
}

func (rd reviewDoc) toReview() (*Review, error) {
	var ids [3]uuid.UUID
	for i, raw := range []string{rd.ID, rd.DoctorID, rd.PatientID} {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("review %s: bad id %q: %w", rd.ID, raw, err)
		}
		ids[i] = id
	}
	return &Review{
		ID:         ids[0],
		DoctorID:   ids[1],
		PatientID:  ids[2],
		Rating:     rd.Rating,
		ReviewText: rd.ReviewText,
		CreatedAt:  rd.CreatedAt,
		UpdatedAt:  rd.UpdatedAt,
	}, nil
}

// mapBookingError turns driver errors on the bookings collection into domain errors.
func mapBookingError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrBookingNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrSlotAlreadyBooked
	}
	return err
}

func decodeBooking(res *mongo.SingleResult) (*Booking, error) {
	var doc bookingDoc
	if err := res.Decode(&doc); err != nil {
		return nil, mapBookingError(err)
	}
	return doc.toBooking()
}

func (r *MongoRepository) findBookings(ctx context.Context, filter bson.M, sortDir int) ([]Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "appointmentDateTime", Value: sortDir}})
	cur, err := r.bookings.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := []Booking{}
	for cur.Next(ctx) {
		var doc bookingDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		b, err := doc.toBooking()
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, cur.Err()
}

// Seeding helpers used by cmd/seed.

func (r *MongoRepository) InsertDoctor(ctx context.Context, d Doctor) error {
	now := r.now()
	_, err := r.doctors.InsertOne(ctx, doctorDoc{
		ID:             d.ID.String(),
		Name:           d.Name,
		Email:          d.Email,
		Phone:          d.Phone,
		Specialization: d.Specialization,
		Bio:            d.Bio,
		TicketPrice:    d.TicketPrice,
		TimeSlots:      toRuleDocs(d.TimeSlots),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	return err
}

func (r *MongoRepository) InsertPatient(ctx context.Context, p Patient) error {
	now := r.now()
	_, err := r.patients.InsertOne(ctx, patientDoc{
		ID:        p.ID.String(),
		Name:      p.Name,
		Email:     p.Email,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return err
}

// Interface methods

func (r *MongoRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var doc doctorDoc
	err := r.doctors.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return doc.toDoctor()
}

func (r *MongoRepository) ListDoctors(ctx context.Context, query string) ([]Doctor, error) {
	filter := bson.M{}
	if query != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
		filter = bson.M{"$or": bson.A{
			bson.M{"name": re},
			bson.M{"specialization": re},
		}}
	}

	cur, err := r.doctors.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := []Doctor{}
	for cur.Next(ctx) {
		var doc doctorDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		d, err := doc.toDoctor()
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, cur.Err()
}

func (r *MongoRepository) UpdateDoctor(ctx context.Context, id uuid.UUID, upd DoctorUpdate) (*Doctor, error) {
	set := bson.M{"updatedAt": r.now()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.Specialization != nil {
		set["specialization"] = *upd.Specialization
	}
	if upd.Bio != nil {
		set["bio"] = *upd.Bio
	}
	if upd.TicketPrice != nil {
		set["ticketPrice"] = *upd.TicketPrice
	}
	if upd.ReplaceSlots {
		set["timeSlots"] = toRuleDocs(upd.TimeSlots)
	}

	var doc doctorDoc
	err := r.doctors.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return doc.toDoctor()
}

func (r *MongoRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var doc patientDoc
	err := r.patients.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return doc.toPatient()
}

func (r *MongoRepository) FindActiveBooking(ctx context.Context, doctorID uuid.UUID, at time.Time) (*Booking, error) {
	return decodeBooking(r.bookings.FindOne(ctx, bson.M{
		"doctorId":            doctorID.String(),
		"appointmentDateTime": at.UTC(),
		"active":              true,
	}))
}

func (r *MongoRepository) ListActiveBookingsForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error) {
	return r.findBookings(ctx, bson.M{
		"doctorId":            doctorID.String(),
		"active":              true,
		"appointmentDateTime": bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}, 1)
}

func (r *MongoRepository) InsertBooking(ctx context.Context, nb NewBooking) (*Booking, error) {
	now := r.now()
	doc := bookingDoc{
		ID:            uuid.NewString(),
		DoctorID:      nb.DoctorID.String(),
		PatientID:     nb.PatientID.String(),
		AppointmentAt: nb.AppointmentAt.UTC(),
		Status:        string(nb.Status),
		Active:        nb.Status.Active(),
		Comment:       nb.Comment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := r.bookings.InsertOne(ctx, doc); err != nil {
		return nil, mapBookingError(err)
	}
	return doc.toBooking()
}

func (r *MongoRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return decodeBooking(r.bookings.FindOne(ctx, bson.M{"_id": id.String()}))
}

func (r *MongoRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	return decodeBooking(r.bookings.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": string(from)},
		bson.M{"$set": bson.M{
			"status":    string(to),
			"active":    to.Active(),
			"updatedAt": r.now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	))
}

func (r *MongoRepository) UpdateBookingNotes(ctx context.Context, id uuid.UUID, prescription, doctorNotes *string) (*Booking, error) {
	set := bson.M{"updatedAt": r.now()}
	if prescription != nil {
		set["prescription"] = *prescription
	}
	if doctorNotes != nil {
		set["doctorNotes"] = *doctorNotes
	}
	return decodeBooking(r.bookings.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	))
}

func (r *MongoRepository) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, excludeCancelled bool) ([]Booking, error) {
	filter := bson.M{"patientId": patientID.String()}
	if excludeCancelled {
		filter["status"] = bson.M{"$ne": string(StatusCancelled)}
	}
	return r.findBookings(ctx, filter, -1)
}

func (r *MongoRepository) ListBookingsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Booking, error) {
	return r.findBookings(ctx, bson.M{"doctorId": doctorID.String()}, 1)
}

func (r *MongoRepository) ListActiveBookingsBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	return r.findBookings(ctx, bson.M{
		"active":              true,
		"appointmentDateTime": bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}, 1)
}

func (r *MongoRepository) InsertReview(ctx context.Context, nr NewReview) (*Review, error) {
	n, err := r.doctors.CountDocuments(ctx, bson.M{"_id": nr.DoctorID.String()})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrDoctorNotFound
	}
	now := r.now()
	doc := reviewDoc{
		ID:         uuid.NewString(),
		DoctorID:   nr.DoctorID.String(),
		PatientID:  nr.PatientID.String(),
		Rating:     nr.Rating,
		ReviewText: nr.ReviewText,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := r.reviews.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrAlreadyReviewed
		}
		return nil, err
	}
	if err := r.refreshRating(ctx, doc.DoctorID); err != nil {
		return nil, fmt.Errorf("refresh doctor rating: %w", err)
	}
	return doc.toReview()
}

// refreshRating recomputes the doctor's rating summary from its reviews.
func (r *MongoRepository) refreshRating(ctx context.Context, doctorID string) error {
	cur, err := r.reviews.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctorId": doctorID}}},
		{{Key: "$group", Value: bson.M{
			"_id":     "$doctorId",
			"total":   bson.M{"$sum": 1},
			"average": bson.M{"$avg": "$rating"},
		}}},
	})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var stats struct {
		Total   int     `bson:"total"`
		Average float64 `bson:"average"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&stats); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	res, err := r.doctors.UpdateOne(ctx,
		bson.M{"_id": doctorID},
		bson.M{"$set": bson.M{
			"averageRating": roundRating(stats.Average),
			"totalRating":   stats.Total,
			"updatedAt":     r.now(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *MongoRepository) ListReviewsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.reviews.Find(ctx, bson.M{"doctorId": doctorID.String()}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := []Review{}
	for cur.Next(ctx) {
		var doc reviewDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rv, err := doc.toReview()
		if err != nil {
			return nil, err
		}
		result = append(result, *rv)
	}
	return result, cur.Err()
}

func (r *MongoRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	doc := eventDoc{
		EventType: ev.EventType,
		Payload:   string(ev.Payload),
		CreatedAt: ev.CreatedAt,
	}
	if ev.BookingID != nil {
		id := ev.BookingID.String()
		doc.BookingID = &id
	}
	_, err := r.events.InsertOne(ctx, doc)
	return err
}

// Ping is used by the readiness check.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.bookings.Database().Client().Ping(ctx, nil)
}
