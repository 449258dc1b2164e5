// Package mongo implements store.Store on MongoDB. Rooms are documents that
// embed their message history, users and activity records live in their own
// collections.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

const (
	usersCollection    = "users"
	roomsCollection    = "rooms"
	activityCollection = "useractivities"
)

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Type      string             `bson:"type"`
	Text      string             `bson:"text,omitempty"`
	Sender    string             `bson:"sender"`
	Data      string             `bson:"data,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`
}

type roomDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	RoomID     string             `bson:"roomId"`
	Password   string             `bson:"password"`
	CreatedAt  time.Time          `bson:"createdAt"`
	LastActive time.Time          `bson:"lastActive"`
	Messages   []messageDoc       `bson:"messages"`
}

type locationDoc struct {
	City      string  `bson:"city"`
	Country   string  `bson:"country"`
	Latitude  float64 `bson:"latitude"`
	Longitude float64 `bson:"longitude"`
}

type activityDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserEmail string             `bson:"userEmail"`
	IPAddress string             `bson:"ipAddress"`
	Location  locationDoc        `bson:"location"`
	RoomID    string             `bson:"roomId"`
	JoinTime  time.Time          `bson:"joinTime"`
	ExitTime  *time.Time         `bson:"exitTime,omitempty"`
	Action    string             `bson:"action"`
}

// MongoStore implements store.Store for MongoDB.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	rooms    *mongo.Collection
	activity *mongo.Collection
}

// New connects to uri and uses the named database.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		rooms:    db.Collection(roomsCollection),
		activity: db.Collection(activityCollection),
	}, nil
}

// Migrate creates the unique and sort indexes the store relies on.
func (s *MongoStore) Migrate(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	if _, err := s.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("rooms index: %w", err)
	}
	if _, err := s.activity.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "joinTime", Value: -1}},
	}); err != nil {
		return fmt.Errorf("activity index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==== UserStore implementation ====

// CreateUser inserts a user document.
func (s *MongoStore) CreateUser(ctx context.Context, email, passwordHash string) (*store.User, error) {
	doc := userDoc{
		ID:        primitive.NewObjectID(),
		Email:     email,
		Password:  passwordHash,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toUser(), nil
}

// GetUserByID retrieves a user by its hex object id.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", id, store.ErrNotFound)
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

// GetUserByEmail retrieves a user by email.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*store.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toUser(), nil
}

func (d userDoc) toUser() *store.User {
	return &store.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
	}
}

// ==== RoomStore implementation ====

// CreateRoom inserts a room document with an empty history.
func (s *MongoStore) CreateRoom(ctx context.Context, roomID, passwordHash string) (*store.Room, error) {
	now := time.Now().UTC()
	doc := roomDoc{
		RoomID:     roomID,
		Password:   passwordHash,
		CreatedAt:  now,
		LastActive: now,
		Messages:   []messageDoc{},
	}
	if _, err := s.rooms.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert room: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}
	return doc.toRoom(), nil
}

// FindRoom retrieves a room with its embedded history.
func (s *MongoStore) FindRoom(ctx context.Context, roomID string) (*store.Room, error) {
	var doc roomDoc
	if err := s.rooms.FindOne(ctx, bson.M{"roomId": roomID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("room %q: %w", roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return doc.toRoom(), nil
}

// ListRooms lists every room, newest first.
func (s *MongoStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	cursor, err := s.rooms.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find rooms: %w", err)
	}

	var docs []roomDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}

	rooms := make([]*store.Room, 0, len(docs))
	for _, doc := range docs {
		rooms = append(rooms, doc.toRoom())
	}
	return rooms, nil
}

// TouchRoomActivity sets lastActive on the room document.
func (s *MongoStore) TouchRoomActivity(ctx context.Context, roomID string, at time.Time) error {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"roomId": roomID},
		bson.M{"$set": bson.M{"lastActive": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update room activity: %w", err)
	}
	return requireMatch(res, roomID)
}

// ClearMessages empties the embedded history.
func (s *MongoStore) ClearMessages(ctx context.Context, roomID string) error {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"roomId": roomID},
		bson.M{"$set": bson.M{"messages": []messageDoc{}}},
	)
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return requireMatch(res, roomID)
}

// ==== MessageStore implementation ====

// AppendMessage pushes the message onto the room's embedded history.
func (s *MongoStore) AppendMessage(ctx context.Context, roomID string, msg *store.Message) error {
	oid := primitive.NewObjectID()
	if msg.ID != "" {
		if parsed, err := primitive.ObjectIDFromHex(msg.ID); err == nil {
			oid = parsed
		}
	}
	msg.ID = oid.Hex()

	doc := messageDoc{
		ID:        oid,
		Type:      string(msg.Kind),
		Text:      msg.Text,
		Sender:    msg.Sender,
		Data:      msg.Data,
		Timestamp: msg.Timestamp.UTC(),
	}
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"roomId": roomID},
		bson.M{"$push": bson.M{"messages": doc}},
	)
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return requireMatch(res, roomID)
}

func requireMatch(res *mongo.UpdateResult, roomID string) error {
	if res.MatchedCount == 0 {
		return fmt.Errorf("room %q: %w", roomID, store.ErrNotFound)
	}
	return nil
}

func (d roomDoc) toRoom() *store.Room {
	room := &store.Room{
		RoomID:       d.RoomID,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
		LastActive:   d.LastActive,
		Messages:     make([]store.Message, 0, len(d.Messages)),
	}
	for _, m := range d.Messages {
		room.Messages = append(room.Messages, store.Message{
			ID:        m.ID.Hex(),
			Kind:      store.MessageKind(m.Type),
			Text:      m.Text,
			Data:      m.Data,
			Sender:    m.Sender,
			Timestamp: m.Timestamp,
		})
	}
	return room
}

// ==== ActivityStore implementation ====

// AppendActivity inserts an activity document.
func (s *MongoStore) AppendActivity(ctx context.Context, rec *store.Activity) error {
	if rec.JoinTime.IsZero() {
		rec.JoinTime = time.Now()
	}
	doc := activityDoc{
		ID:        primitive.NewObjectID(),
		UserEmail: rec.UserEmail,
		IPAddress: rec.IPAddress,
		Location: locationDoc{
			City:      rec.Location.City,
			Country:   rec.Location.Country,
			Latitude:  rec.Location.Latitude,
			Longitude: rec.Location.Longitude,
		},
		RoomID:   rec.RoomID,
		JoinTime: rec.JoinTime.UTC(),
		Action:   string(rec.Action),
	}
	if rec.ExitTime != nil {
		exit := rec.ExitTime.UTC()
		doc.ExitTime = &exit
	}

	if _, err := s.activity.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	rec.ID = doc.ID.Hex()
	return nil
}

// ListActivity returns the log sorted by joinTime descending.
func (s *MongoStore) ListActivity(ctx context.Context) ([]*store.Activity, error) {
	cursor, err := s.activity.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "joinTime", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find activity: %w", err)
	}

	var docs []activityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}

	records := make([]*store.Activity, 0, len(docs))
	for _, d := range docs {
		records = append(records, &store.Activity{
			ID:        d.ID.Hex(),
			UserEmail: d.UserEmail,
			IPAddress: d.IPAddress,
			Location: store.Location{
				City:      d.Location.City,
				Country:   d.Location.Country,
				Latitude:  d.Location.Latitude,
				Longitude: d.Location.Longitude,
			},
			RoomID:   d.RoomID,
			JoinTime: d.JoinTime,
			ExitTime: d.ExitTime,
			Action:   store.ActivityAction(d.Action),
		})
	}
	return records, nil
}
