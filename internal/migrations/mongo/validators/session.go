package validators

import "go.mongodb.org/mongo-driver/bson"

var SessionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"date",
			"purpose",
			"starts_at",
			"capacity",
			"bookings_used",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"title": bson.M{
				"bsonType":  "string",
				"maxLength": 200,
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

			"capacity": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"bookings_used": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
		},
	},
}
