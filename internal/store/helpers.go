package store

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bsonM = bson.M

var upsertOpts = options.Update().SetUpsert(true)
