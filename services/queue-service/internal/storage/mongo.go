package storage

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	appointmentsCollection  = "appointments"
	notificationsCollection = "notifications"
	settingsCollection      = "queue_settings"
	countersCollection      = "counters"

	// queue number inserts retried after losing a race for the same sequence
	maxQueueNumberAttempts = 5
)

type appointmentDoc struct {
	ID              int64      `bson:"_id"`
	Name            string     `bson:"name"`
	Email           string     `bson:"email"`
	Phone           string     `bson:"phone"`
	Purpose         string     `bson:"purpose"`
	AdditionalNotes string     `bson:"additional_notes,omitempty"`
	QueueNumber     string     `bson:"queue_number"`
	Status          int        `bson:"status"`
	CreatedTime     time.Time  `bson:"created_time"`
	LastUpdated     *time.Time `bson:"last_updated,omitempty"`
}

func (d appointmentDoc) model() model.Appointment {
	return model.Appointment{
		ID:              d.ID,
		Name:            d.Name,
		Email:           d.Email,
		Phone:           d.Phone,
		Purpose:         d.Purpose,
		AdditionalNotes: d.AdditionalNotes,
		QueueNumber:     d.QueueNumber,
		Status:          model.Status(d.Status),
		CreatedTime:     d.CreatedTime,
		LastUpdated:     d.LastUpdated,
	}
}

type notificationDoc struct {
	ID               int64     `bson:"_id"`
	AppointmentID    int64     `bson:"appointment_id"`
	Type             string    `bson:"type"`
	EmailContent     string    `bson:"email_content"`
	EmailSent        bool      `bson:"email_sent"`
	NotificationTime time.Time `bson:"notification_time"`
}

type settingsDoc struct {
	ID                int       `bson:"_id"`
	AverageWaitTime   int       `bson:"average_wait_time"`
	MaxDailyBookings  int       `bson:"max_daily_bookings"`
	WorkingHoursStart string    `bson:"working_hours_start"`
	WorkingHoursEnd   string    `bson:"working_hours_end"`
	IsHoliday         bool      `bson:"is_holiday"`
	LastUpdated       time.Time `bson:"last_updated"`
}

// Mongo stores the queue in a MongoDB database. Numeric IDs come from a
// counters collection so the HTTP surface is the same for every driver.
type Mongo struct {
	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// OpenMongo connects and pings. The caller disconnects the returned client.
func OpenMongo(ctx context.Context, uri, database string) (*mongo.Client, *Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, NewMongo(client.Database(database)), nil
}

// EnsureIndexes creates the unique indexes the store relies on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(appointmentsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "queue_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_queue_number"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "queue_number", Value: 1}},
			Options: options.Index().SetName("status_queue_number"),
		},
		{
			Keys:    bson.D{{Key: "created_time", Value: 1}},
			Options: options.Index().SetName("created_time"),
		},
	})
	if err != nil {
		return err
	}
	_, err = m.db.Collection(notificationsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "appointment_id", Value: 1}, {Key: "type", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("unique_appointment_type"),
	})
	return err
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, nil)
}

func (m *Mongo) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func prefixFilter(prefix string) bson.M {
	return bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
}

func (m *Mongo) findAppointment(ctx context.Context, filter bson.M) (model.Appointment, error) {
	var doc appointmentDoc
	err := m.db.Collection(appointmentsCollection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return doc.model(), nil
}

func (m *Mongo) findAppointments(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Appointment, error) {
	cur, err := m.db.Collection(appointmentsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []appointmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	appts := make([]model.Appointment, 0, len(docs))
	for _, d := range docs {
		appts = append(appts, d.model())
	}
	return appts, nil
}

func (m *Mongo) FindByQueueNumber(ctx context.Context, queueNumber string) (model.Appointment, error) {
	return m.findAppointment(ctx, bson.M{"queue_number": queueNumber})
}

func (m *Mongo) CountWaitingBefore(ctx context.Context, datePrefix, queueNumber string) (int, error) {
	queueFilter := prefixFilter(datePrefix)
	queueFilter["$lt"] = queueNumber
	n, err := m.db.Collection(appointmentsCollection).CountDocuments(ctx, bson.M{
		"status":       int(model.StatusWaiting),
		"queue_number": queueFilter,
	})
	return int(n), err
}

func (m *Mongo) GetSettings(ctx context.Context) (model.QueueSetting, error) {
	var doc settingsDoc
	err := m.db.Collection(settingsCollection).FindOne(ctx, bson.M{"_id": 1}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.QueueSetting{}, ErrNotFound
	}
	if err != nil {
		return model.QueueSetting{}, err
	}
	return model.QueueSetting{
		AverageWaitTime:   doc.AverageWaitTime,
		MaxDailyBookings:  doc.MaxDailyBookings,
		WorkingHoursStart: doc.WorkingHoursStart,
		WorkingHoursEnd:   doc.WorkingHoursEnd,
		IsHoliday:         doc.IsHoliday,
		LastUpdated:       doc.LastUpdated,
	}, nil
}

func (m *Mongo) SaveSettings(ctx context.Context, s model.QueueSetting) error {
	_, err := m.db.Collection(settingsCollection).ReplaceOne(ctx,
		bson.M{"_id": 1},
		settingsDoc{
			ID:                1,
			AverageWaitTime:   s.AverageWaitTime,
			MaxDailyBookings:  s.MaxDailyBookings,
			WorkingHoursStart: s.WorkingHoursStart,
			WorkingHoursEnd:   s.WorkingHoursEnd,
			IsHoliday:         s.IsHoliday,
			LastUpdated:       s.LastUpdated,
		},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (m *Mongo) ListWaiting(ctx context.Context) ([]model.Appointment, error) {
	return m.findAppointments(ctx,
		bson.M{"status": int(model.StatusWaiting)},
		options.Find().SetSort(bson.D{{Key: "queue_number", Value: 1}}),
	)
}

func (m *Mongo) FindNotification(ctx context.Context, appointmentID int64, notificationType string) (model.Notification, error) {
	var doc notificationDoc
	err := m.db.Collection(notificationsCollection).FindOne(ctx, bson.M{
		"appointment_id": appointmentID,
		"type":           notificationType,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Notification{}, ErrNotFound
	}
	if err != nil {
		return model.Notification{}, err
	}
	return model.Notification(doc), nil
}

func (m *Mongo) InsertNotification(ctx context.Context, n *model.Notification) error {
	// no foreign keys here; check the appointment the way Postgres would
	count, err := m.db.Collection(appointmentsCollection).CountDocuments(ctx, bson.M{"_id": n.AppointmentID})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	id, err := m.nextID(ctx, notificationsCollection)
	if err != nil {
		return err
	}
	doc := notificationDoc(*n)
	doc.ID = id
	if _, err := m.db.Collection(notificationsCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	n.ID = id
	return nil
}

func (m *Mongo) MarkNotificationSent(ctx context.Context, notificationID int64) error {
	res, err := m.db.Collection(notificationsCollection).UpdateOne(ctx,
		bson.M{"_id": notificationID},
		bson.M{"$set": bson.M{"email_sent": true}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAppointment relies on the unique queue_number index: a concurrent
// booking that takes the same sequence makes the insert fail and the count
// is retried.
func (m *Mongo) CreateAppointment(ctx context.Context, a model.NewAppointment, day time.Time, maxDaily int) (model.Appointment, error) {
	prefix := model.DayPrefix(day)
	coll := m.db.Collection(appointmentsCollection)
	for attempt := 0; attempt < maxQueueNumberAttempts; attempt++ {
		existing, err := coll.CountDocuments(ctx, bson.M{"queue_number": prefixFilter(prefix)})
		if err != nil {
			return model.Appointment{}, err
		}
		seq, err := nextSequence(int(existing), maxDaily)
		if err != nil {
			return model.Appointment{}, err
		}
		id, err := m.nextID(ctx, appointmentsCollection)
		if err != nil {
			return model.Appointment{}, err
		}
		created := a.CreatedTime
		doc := appointmentDoc{
			ID:              id,
			Name:            a.Name,
			Email:           a.Email,
			Phone:           a.Phone,
			Purpose:         a.Purpose,
			AdditionalNotes: a.AdditionalNotes,
			QueueNumber:     model.FormatQueueNumber(day, seq),
			Status:          int(model.StatusWaiting),
			CreatedTime:     created,
			LastUpdated:     &created,
		}
		_, err = coll.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			continue
		}
		if err != nil {
			return model.Appointment{}, err
		}
		return doc.model(), nil
	}
	return model.Appointment{}, ErrDuplicate
}

func (m *Mongo) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	return m.findAppointment(ctx, bson.M{"_id": id})
}

func (m *Mongo) ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	filter := bson.M{}
	if f.DayPrefix != "" {
		filter["queue_number"] = prefixFilter(f.DayPrefix)
	}
	return m.findAppointments(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_time", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(f.limit())))
}

func (m *Mongo) UpdateStatus(ctx context.Context, id int64, status model.Status, notes string, now time.Time) (model.Appointment, error) {
	set := bson.M{"status": int(status), "last_updated": now}
	if notes != "" {
		set["additional_notes"] = notes
	}
	var doc appointmentDoc
	err := m.db.Collection(appointmentsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return doc.model(), nil
}

func (m *Mongo) CancelAppointment(ctx context.Context, id int64, now time.Time) (model.Appointment, error) {
	var doc appointmentDoc
	err := m.db.Collection(appointmentsCollection).FindOneAndUpdate(ctx,
		bson.M{
			"_id":    id,
			"status": bson.M{"$in": bson.A{int(model.StatusWaiting), int(model.StatusCompleted)}},
		},
		bson.M{"$set": bson.M{"status": int(model.StatusCancelled), "last_updated": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := m.GetAppointment(ctx, id); err != nil {
			return model.Appointment{}, err
		}
		return model.Appointment{}, ErrInvalidTransition
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return doc.model(), nil
}

func (m *Mongo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	appts := m.db.Collection(appointmentsCollection)
	cur, err := appts.Find(ctx,
		bson.M{"created_time": bson.M{"$lt": cutoff}},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return 0, err
	}
	var stale []struct {
		ID int64 `bson:"_id"`
	}
	if err := cur.All(ctx, &stale); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	ids := make(bson.A, 0, len(stale))
	for _, s := range stale {
		ids = append(ids, s.ID)
	}
	if _, err := m.db.Collection(notificationsCollection).DeleteMany(ctx, bson.M{"appointment_id": bson.M{"$in": ids}}); err != nil {
		return 0, err
	}
	res, err := appts.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

var _ Store = (*Mongo)(nil)
