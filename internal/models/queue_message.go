package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue has no visible message.
var ErrNoMessage = errors.New("no messages in queue")

// JobTypeCrawl routes a message to the crawl job runner.
const JobTypeCrawl = "crawl"

// QueueMessage is the structure stored in the queue. The JobID equals the
// crawl run ID, which gives queue-level idempotency for free: enqueueing the
// same run twice is a no-op.
type QueueMessage struct {
	JobID   string          `json:"job_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// CrawlJobPayload is the payload of a JobTypeCrawl message.
type CrawlJobPayload struct {
	CrawlRunID string `json:"crawlRunId"`
	ProjectID  string `json:"projectId"`
}

// NewCrawlMessage builds the queue message for a crawl run.
func NewCrawlMessage(crawlRunID, projectID string) (QueueMessage, error) {
	payload, err := json.Marshal(CrawlJobPayload{CrawlRunID: crawlRunID, ProjectID: projectID})
	if err != nil {
		return QueueMessage{}, err
	}
	return QueueMessage{JobID: crawlRunID, Type: JobTypeCrawl, Payload: payload}, nil
}

// DecodeCrawlPayload parses a crawl message payload.
func DecodeCrawlPayload(msg *QueueMessage) (CrawlJobPayload, error) {
	var p CrawlJobPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return p, err
	}
	if p.CrawlRunID == "" {
		return p, errors.New("crawl payload missing crawlRunId")
	}
	return p, nil
}
