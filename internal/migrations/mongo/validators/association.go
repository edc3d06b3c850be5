package validators

import (
	"exambook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

var AssociationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"from_type",
			"from_id",
			"to_type",
			"to_id",
			"label",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"from_type": bson.M{
				"bsonType": "string",
				"enum":     []string{string(model.ObjectBooking)},
			},

			"from_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"to_type": bson.M{
				"bsonType": "string",
				"enum":     []string{string(model.ObjectSession), string(model.ObjectRequester)},
			},

			"to_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"label": bson.M{
				"bsonType": "string",
				"enum":     []string{model.LabelBookingSession, model.LabelBookingRequester},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
