package kurrentdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/sos-villages/signalement/internal/shared/events"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// StreamPrefix is prepended to every aggregate stream name
const StreamPrefix = "signalement"

var errClosed = errors.New("kurrentdb client closed")

// Publisher appends domain events to one stream per aggregate,
// e.g. signalement-case-<id>.
type Publisher struct {
	client *Client
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish groups events by stream and appends each group in a single
// write, keeping the order of first appearance. Event ids are derived from
// the domain event id so a retried publish is deduplicated by the server.
func (p *Publisher) Publish(ctx context.Context, evts ...events.Event) error {
	db := p.client.DB()
	if db == nil {
		return errClosed
	}

	var order []string
	batches := make(map[string][]esdb.EventData)
	for _, event := range evts {
		data, err := toEventData(event)
		if err != nil {
			return err
		}
		stream := StreamName(event.AggregateType, event.AggregateID)
		if _, seen := batches[stream]; !seen {
			order = append(order, stream)
		}
		batches[stream] = append(batches[stream], data)
	}

	for _, stream := range order {
		_, err := db.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{ExpectedRevision: esdb.Any{}}, batches[stream]...)
		if err != nil {
			return fmt.Errorf("append to %s: %w", stream, err)
		}
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func toEventData(event events.Event) (esdb.EventData, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return esdb.EventData{}, fmt.Errorf("marshal %s data: %w", event.Type, err)
	}
	metadata, err := json.Marshal(struct {
		Source    string   `json:"source"`
		ActorID   types.ID `json:"actor_id,omitempty"`
		Timestamp string   `json:"timestamp"`
	}{event.Source, event.ActorID, event.Timestamp.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return esdb.EventData{}, fmt.Errorf("marshal %s metadata: %w", event.Type, err)
	}
	return esdb.EventData{
		EventID:     eventUUID(event.ID),
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		Metadata:    metadata,
	}, nil
}

// StreamName returns the stream holding an aggregate's events.
func StreamName(aggregateType string, id types.ID) string {
	return fmt.Sprintf("%s-%s-%s", StreamPrefix, aggregateType, id)
}

// eventUUID keeps UUID ids as they are and hashes anything else into a
// name-based UUID, so the same event always maps to the same id.
func eventUUID(id types.ID) uuid.UUID {
	if parsed, err := uuid.Parse(string(id)); err == nil {
		return parsed
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(StreamPrefix+":"+string(id)))
}

var _ events.Publisher = (*Publisher)(nil)
