package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "exambook/internal/bookings/errors"
	"exambook/pkg/config"
	"exambook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRecordStore struct {
	cfg          *config.Config
	db           *mongo.Database
	sessions     *mongo.Collection
	bookings     *mongo.Collection
	associations *mongo.Collection
}

func NewMongoRecordStore(cfg *config.Config) *MongoRecordStore {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &MongoRecordStore{
		cfg:          cfg,
		db:           db,
		sessions:     db.Collection(SessionsCollection),
		bookings:     db.Collection(BookingsCollection),
		associations: db.Collection(AssociationsCollection),
	}
}

// withTimeout caps ctx at timeout, keeping an earlier caller deadline.
func (r *MongoRecordStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Booking ids are ObjectID hex strings stored as plain strings.
func validateBookingID(id string) error {
	if !primitive.IsValidObjectID(id) {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return nil
}

func statusFilter(status model.BookingStatus) bson.M {
	return bson.M{"$in": status.Spellings()}
}

func (r *MongoRecordStore) CreateSession(ctx context.Context, session *model.Session) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	session.UpdatedAt = now()
	if _, err := r.sessions.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *MongoRecordStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var session model.Session
	err := r.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &session, nil
}

func (r *MongoRecordStore) GetSessionCapacity(ctx context.Context, id string) (int, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.FindOne().SetProjection(bson.M{"capacity": 1})

	var session model.Session
	err := r.sessions.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, bookingserrors.ErrSessionNotFound
		}
		return 0, fmt.Errorf("failed to read session capacity: %w", err)
	}
	return session.Capacity, nil
}

func (r *MongoRecordStore) UpdateSessionUsed(ctx context.Context, id string, used int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"bookings_used": used, "updated_at": now()}}
	result, err := r.sessions.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update session counter: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrSessionNotFound
	}
	return nil
}

func (r *MongoRecordStore) CreateBooking(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	ts := now()
	booking.ID = primitive.NewObjectID().Hex()
	booking.CreatedAt = ts
	booking.UpdatedAt = ts

	if _, err := r.bookings.InsertOne(ctx, booking); err != nil {
		booking.ID = ""
		if mongo.IsDuplicateKeyError(err) {
			return bookingserrors.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *MongoRecordStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if err := validateBookingID(id); err != nil {
		return nil, err
	}

	var booking model.Booking
	err := r.bookings.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

func (r *MongoRecordStore) BatchGetBookings(ctx context.Context, ids []string) (map[string]*model.Booking, *BatchResult, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	result := newBatchResult()
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := validateBookingID(id); err != nil {
			result.fail(id, err)
			continue
		}
		valid = append(valid, id)
	}

	found := make(map[string]*model.Booking, len(valid))
	if len(valid) == 0 {
		return found, result, nil
	}

	cursor, err := r.bookings.Find(ctx, bson.M{"_id": bson.M{"$in": valid}})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to batch read bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	for _, b := range bookings {
		found[b.ID] = b
	}

	for _, id := range valid {
		if _, ok := found[id]; ok {
			result.Succeeded = append(result.Succeeded, id)
		} else {
			result.fail(id, bookingserrors.ErrNotFound)
		}
	}
	return found, result, nil
}

func (r *MongoRecordStore) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := validateBookingID(id); err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"status": status, "updated_at": now()}}
	result, err := r.bookings.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if result.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

// BatchUpdateBookingStatus updates each id on its own so one bad id does not
// fail the rest.
func (r *MongoRecordStore) BatchUpdateBookingStatus(ctx context.Context, ids []string, status model.BookingStatus) (*BatchResult, error) {
	result := newBatchResult()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.UpdateBookingStatus(ctx, id, status); err != nil {
			result.fail(id, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (r *MongoRecordStore) FindByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.bookings.FindOne(ctx, bson.M{"idempotency_key": key}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking by idempotency key: %w", err)
	}
	return &booking, nil
}

func (r *MongoRecordStore) SearchBookings(ctx context.Context, status model.BookingStatus, threshold time.Time, limit int) ([]*model.Booking, error) {
	filter := bson.M{
		"status": statusFilter(status),
		// bookings of sessions without a start time never match
		"starts_at": bson.M{"$gt": time.Time{}, "$lte": threshold},
	}
	opts := options.Find().SetSort(bson.D{{Key: "starts_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findBookings(ctx, filter, opts)
}

func (r *MongoRecordStore) ListBookingsBySession(ctx context.Context, sessionID string) ([]*model.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.findBookings(ctx, bson.M{"session_id": sessionID}, opts)
}

func (r *MongoRecordStore) ListBookingsByRequester(ctx context.Context, requesterID string) ([]*model.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	return r.findBookings(ctx, bson.M{"requester_id": requesterID}, opts)
}

func (r *MongoRecordStore) findBookings(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.bookings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *MongoRecordStore) CreateAssociation(ctx context.Context, assoc *model.Association) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	assoc.ID = primitive.NewObjectID().Hex()
	assoc.CreatedAt = now()
	if _, err := r.associations.InsertOne(ctx, assoc); err != nil {
		assoc.ID = ""
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to create association: %w", err)
	}
	return nil
}

func (r *MongoRecordStore) ListAssociations(ctx context.Context, toType model.ObjectType, toID string, label string) ([]*model.Association, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"to_type": toType, "to_id": toID, "label": label}
	cursor, err := r.associations.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list associations: %w", err)
	}
	defer cursor.Close(ctx)

	assocs := []*model.Association{}
	if err := cursor.All(ctx, &assocs); err != nil {
		return nil, fmt.Errorf("failed to decode associations: %w", err)
	}
	return assocs, nil
}

func (r *MongoRecordStore) DeleteAssociations(ctx context.Context, fromType model.ObjectType, fromID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.associations.DeleteMany(ctx, bson.M{"from_type": fromType, "from_id": fromID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete associations: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *MongoRecordStore) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()
	return r.db.Client().Ping(ctx, nil)
}
