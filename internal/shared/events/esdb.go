package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/djelfa-health/dispatch/internal/shared/config"
)

// ESDBBus publishes events to EventStoreDB, one stream per event category.
type ESDBBus struct {
	client *esdb.Client
	prefix string
}

// NewESDBBus creates an event bus connected to EventStoreDB
func NewESDBBus(_ context.Context, cfg config.EventStoreConfig) (*ESDBBus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create EventStoreDB client: %w", err)
	}

	return &ESDBBus{client: client, prefix: "dispatch"}, nil
}

// buildConnectionString creates the esdb:// connection string
func buildConnectionString(cfg config.EventStoreConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false"
		params += "&keepAliveInterval=10000&keepAliveTimeout=10000"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Publish appends the event to its category stream, e.g. a "case.accepted"
// event lands in stream "dispatch-case".
func (b *ESDBBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	category := event.Type
	if i := strings.IndexByte(category, '.'); i > 0 {
		category = category[:i]
	}
	stream := fmt.Sprintf("%s-%s", b.prefix, category)

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	_, err = b.client.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the client connection
func (b *ESDBBus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health verifies the connection by reading from the $streams projection
func (b *ESDBBus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("EventStoreDB health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}

var _ Bus = (*ESDBBus)(nil)
