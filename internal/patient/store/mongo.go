package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patientregistry/internal/patient/models"
	"patientregistry/internal/patient/phone"
	id "patientregistry/pkg/domain"
	"patientregistry/pkg/platform/sentinel"
)

// PatientCollection is the default collection name for patient documents.
const PatientCollection = "patients"

const phoneIndexName = "uniq_phone_normalized"

// patientDocument is the persisted layout. phoneNormalized backs the unique
// index; phoneNumber keeps the raw input.
type patientDocument struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Name            string             `bson:"name"`
	PhoneNumber     string             `bson:"phoneNumber"`
	PhoneNormalized string             `bson:"phoneNormalized"`
	Email           string             `bson:"email"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

// MongoStore persists patients in a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(PatientCollection)}
}

// EnsureIndexes creates the unique normalized-phone index. Idempotent.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "phoneNormalized", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(phoneIndexName),
	})
	if err != nil {
		return fmt.Errorf("create patient phone index: %w", err)
	}
	return nil
}

// FindAll returns every patient ordered by _id, which tracks insertion order.
func (s *MongoStore) FindAll(ctx context.Context) ([]*models.Patient, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	var docs []patientDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	out := make([]*models.Patient, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toModel())
	}
	return out, nil
}

func (s *MongoStore) FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	oid, err := primitive.ObjectIDFromHex(patientID.String())
	if err != nil {
		// ids minted by another store can never exist here
		return nil, sentinel.ErrNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *MongoStore) ExistsByPhoneNumber(ctx context.Context, phoneNumber string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx,
		bson.D{{Key: "phoneNormalized", Value: phone.Normalize(phoneNumber)}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("count patients by phone: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) FindByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Patient, error) {
	return s.findOne(ctx, bson.D{{Key: "phoneNormalized", Value: phone.Normalize(phoneNumber)}})
}

// Save inserts when the ID is empty and replaces the document otherwise.
func (s *MongoStore) Save(ctx context.Context, patient *models.Patient) (*models.Patient, error) {
	doc := fromModel(patient)

	if patient.ID.IsZero() {
		res, err := s.coll.InsertOne(ctx, doc)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, sentinel.ErrAlreadyUsed
			}
			return nil, fmt.Errorf("insert patient: %w", err)
		}
		oid, ok := res.InsertedID.(primitive.ObjectID)
		if !ok {
			return nil, fmt.Errorf("insert patient: unexpected id type %T", res.InsertedID)
		}
		doc.ID = oid
		return doc.toModel(), nil
	}

	oid, err := primitive.ObjectIDFromHex(patient.ID.String())
	if err != nil {
		return nil, sentinel.ErrNotFound
	}
	doc.ID = oid
	res, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: oid}}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, sentinel.ErrAlreadyUsed
		}
		return nil, fmt.Errorf("replace patient: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, sentinel.ErrNotFound
	}
	return doc.toModel(), nil
}

func (s *MongoStore) DeleteByID(ctx context.Context, patientID id.PatientID) error {
	oid, err := primitive.ObjectIDFromHex(patientID.String())
	if err != nil {
		return sentinel.ErrNotFound
	}
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if res.DeletedCount == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Health pings the deployment behind the collection.
func (s *MongoStore) Health(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (*models.Patient, error) {
	var doc patientDocument
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return doc.toModel(), nil
}

func fromModel(p *models.Patient) patientDocument {
	return patientDocument{
		Name:            p.Name,
		PhoneNumber:     p.PhoneNumber,
		PhoneNormalized: phone.Normalize(p.PhoneNumber),
		Email:           p.Email,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
}

func (d patientDocument) toModel() *models.Patient {
	return &models.Patient{
		ID:          id.PatientID(d.ID.Hex()),
		Name:        d.Name,
		PhoneNumber: d.PhoneNumber,
		Email:       d.Email,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
