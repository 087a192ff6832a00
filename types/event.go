package types

import "time"

// EventEnvelope is the S3-compatible notification body POSTed (or
// published) to a matched handler: a list of records, matching the wire
// shape real S3 event notifications use so existing handler code written
// against that contract works unmodified.
type EventEnvelope struct {
	Records []EventRecord `json:"Records"`
}

// EventRecord is a single event inside an EventEnvelope.
type EventRecord struct {
	EventVersion string      `json:"eventVersion"`
	EventSource  string      `json:"eventSource"`
	AwsRegion    string      `json:"awsRegion"`
	EventTime    time.Time   `json:"eventTime"`
	EventName    string      `json:"eventName"`
	S3           EventS3Data `json:"s3"`
}

// EventS3Data carries the bucket and object identity for an EventRecord.
type EventS3Data struct {
	S3SchemaVersion string      `json:"s3SchemaVersion"`
	Bucket          EventBucket `json:"bucket"`
	Object          EventObject `json:"object"`
}

type EventBucket struct {
	Name string `json:"name"`
	Arn  string `json:"arn"`
}

type EventObject struct {
	Key  string `json:"key"`
	Size uint64 `json:"size"`
}

// NewEventEnvelope builds the single-record envelope the notification
// engine sends for one matched (event, bucket, key) firing. The version,
// source, region, and schema values are the fixed ones handler code
// written against the S3 event contract expects.
func NewEventEnvelope(event EventType, bucket, key string, size uint64, at time.Time) EventEnvelope {
	return EventEnvelope{
		Records: []EventRecord{
			{
				EventVersion: "2.0",
				EventSource:  "aws:s3",
				AwsRegion:    "us-west-1",
				EventTime:    at,
				EventName:    string(event),
				S3: EventS3Data{
					S3SchemaVersion: "1.0",
					Bucket: EventBucket{
						Name: bucket,
						Arn:  BucketArn(bucket),
					},
					Object: EventObject{Key: key, Size: size},
				},
			},
		},
	}
}
