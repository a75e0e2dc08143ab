package classmap

import (
	"reflect"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDGenerator produces ids for documents whose id member is empty.
type IDGenerator interface {
	Generate() (any, error)
	IsEmpty(id any) bool
}

// ObjectIDGenerator generates primitive.ObjectID ids. It is the default for
// id members of that type.
type ObjectIDGenerator struct{}

func (ObjectIDGenerator) Generate() (any, error) { return primitive.NewObjectID(), nil }
func (ObjectIDGenerator) IsEmpty(id any) bool    { return isZeroID(id) }

// StringObjectIDGenerator generates hex-encoded ObjectIDs for string ids.
type StringObjectIDGenerator struct{}

func (StringObjectIDGenerator) Generate() (any, error) { return primitive.NewObjectID().Hex(), nil }
func (StringObjectIDGenerator) IsEmpty(id any) bool    { return isZeroID(id) }

// UUIDGenerator generates random (version 4) uuid.UUID ids. It is the default
// for id members of that type.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() (any, error) { return uuid.NewRandom() }
func (UUIDGenerator) IsEmpty(id any) bool    { return isZeroID(id) }

// KSUIDGenerator generates K-sortable string ids.
type KSUIDGenerator struct{}

func (KSUIDGenerator) Generate() (any, error) { return ksuid.New().String(), nil }
func (KSUIDGenerator) IsEmpty(id any) bool    { return isZeroID(id) }

func isZeroID(id any) bool {
	if id == nil {
		return true
	}
	return reflect.ValueOf(id).IsZero()
}

var (
	tObjectID = reflect.TypeFor[primitive.ObjectID]()
	tUUID     = reflect.TypeFor[uuid.UUID]()
)

// defaultIDGenerator returns the generator used for id members of type t when
// none is configured.
func defaultIDGenerator(t reflect.Type) IDGenerator {
	switch t {
	case tObjectID:
		return ObjectIDGenerator{}
	case tUUID:
		return UUIDGenerator{}
	}
	return nil
}
