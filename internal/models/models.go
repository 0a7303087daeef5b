// Package models defines the data shapes shared across the pipeline.
package models

// EventRecord is one email-tracking event row extracted from a batch.
// Pointer fields map to nullable columns; a nil pointer inserts NULL.
type EventRecord struct {
	EventID        *string
	Timestamp      *int64
	Type           *string
	BounceClass    *int64
	CampaignID     *string
	FriendlyFrom   *string
	MessageID      *string
	Reason         *string
	RcptTo         *string
	SubaccountID   *int64
	TemplateID     *string
	TransmissionID *string

	// Event is the full flattened event object serialized as JSON text.
	Event string
}

// StorageNotification is the bucket-change trigger payload. The shape follows
// the S3 event notification format, which MinIO-compatible stores also emit.
type StorageNotification struct {
	Records []NotificationRecord `json:"Records"`
}

// NotificationRecord is a single storage-change record.
type NotificationRecord struct {
	EventSource string `json:"eventSource"`
	S3          struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// StoreBatchResponse confirms a staged webhook batch.
type StoreBatchResponse struct {
	BatchID string `json:"batch_id"`
	Bytes   int    `json:"bytes"`
}

// ProcessBatchResponse reports the outcome of one batch-processing invocation.
type ProcessBatchResponse struct {
	BatchID   string `json:"batch_id"`
	Rows      int    `json:"rows"`
	Duplicate bool   `json:"duplicate"`
}
