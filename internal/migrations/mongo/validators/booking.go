package validators

import (
	"exambook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

// storedStatuses accepts every spelling the status decoder understands so
// imported legacy documents stay writable.
func storedStatuses() []string {
	var out []string
	for _, s := range []model.BookingStatus{model.StatusActive, model.StatusCancelled, model.StatusCompleted, model.StatusFailed} {
		out = append(out, s.Spellings()...)
	}
	return out
}

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"session_id",
			"requester_id",
			"date",
			"purpose",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"session_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"requester_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"purpose": bson.M{
				"bsonType": "string",
				"enum":     []string{"exam", "discussion"},
			},

			"starts_at": bson.M{
				"bsonType": "date",
			},

			"status": bson.M{
				"bsonType": "string",
				"enum":     storedStatuses(),
			},

			"idempotency_key": bson.M{
				"bsonType": "string",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
