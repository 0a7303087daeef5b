// Package seeder generates synthetic webhook batches for load and smoke
// testing against a running ingest endpoint.
package seeder

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// eventTypes are the tracking event classes the generator cycles through.
var eventTypes = []string{"delivery", "bounce", "open", "click", "injection", "delay"}

// envelopeClasses maps event types to the webhook's envelope class key.
var envelopeClasses = map[string]string{
	"delivery":  "message_event",
	"bounce":    "message_event",
	"injection": "message_event",
	"delay":     "message_event",
	"open":      "track_event",
	"click":     "track_event",
}

// Config controls the seeding run.
type Config struct {
	// URL is the store-batch endpoint to post to.
	URL string
	// Batches is the number of batches to send.
	Batches int
	// BatchSize is the number of events per batch.
	BatchSize int
	// Interval is the pause between batches.
	Interval time.Duration
}

// Runner posts generated batches to the ingest endpoint.
type Runner struct {
	cfg    Config
	client *http.Client
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Run generates and sends the configured number of batches.
func (r *Runner) Run() error {
	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Seeding %d batches of %d events to %s", r.cfg.Batches, r.cfg.BatchSize, r.cfg.URL)

	for i := 0; i < r.cfg.Batches; i++ {
		batchID := uuid.New().String()
		payload := GenerateBatch(r.cfg.BatchSize)

		if err := r.send(batchID, payload); err != nil {
			return fmt.Errorf("batch %d (%s): %w", i, batchID, err)
		}

		if r.cfg.Interval > 0 && i < r.cfg.Batches-1 {
			time.Sleep(r.cfg.Interval)
		}
	}

	log.Printf("Seeding complete: %d batches sent", r.cfg.Batches)
	return nil
}

func (r *Runner) send(batchID string, payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, r.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-MessageSystems-Batch-ID", batchID)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// GenerateBatch renders one webhook-shaped JSON array of n events.
func GenerateBatch(n int) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(generateElement(i))
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func generateElement(seq int) []byte {
	eventType := eventTypes[rand.Intn(len(eventTypes))]
	class := envelopeClasses[eventType]

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"msys":{%q:{`, class)
	fmt.Fprintf(&buf, `"event_id":%q`, fmt.Sprintf("%d%06d", time.Now().UnixNano(), seq))
	fmt.Fprintf(&buf, `,"timestamp":%d`, time.Now().Add(-time.Duration(rand.Intn(86400))*time.Second).Unix())
	fmt.Fprintf(&buf, `,"type":%q`, eventType)
	if eventType == "bounce" {
		fmt.Fprintf(&buf, `,"bounce_class":%d`, 10+rand.Intn(90))
		fmt.Fprintf(&buf, `,"reason":%q`, gofakeit.Sentence(5))
	}
	fmt.Fprintf(&buf, `,"campaign_id":%q`, gofakeit.Word())
	fmt.Fprintf(&buf, `,"friendly_from":%q`, gofakeit.Email())
	fmt.Fprintf(&buf, `,"message_id":%q`, gofakeit.UUID())
	fmt.Fprintf(&buf, `,"rcpt_to":%q`, gofakeit.Email())
	fmt.Fprintf(&buf, `,"subaccount_id":%d`, rand.Intn(100))
	fmt.Fprintf(&buf, `,"template_id":%q`, gofakeit.Word())
	fmt.Fprintf(&buf, `,"transmission_id":%q`, gofakeit.UUID())
	buf.WriteString(`}}}`)
	return buf.Bytes()
}
