package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/glimte/mmate-pact/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PublishingFunc builds the AMQP message a service would publish
type PublishingFunc func(ctx context.Context) (amqp.Publishing, error)

// Producer adapts fn into a message producer. JSON bodies are passed through
// as contents; AMQP properties and headers become message metadata.
func Producer(fn PublishingFunc) messaging.ProducerFunc {
	return func(ctx context.Context) (interface{}, error) {
		msg, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return FromPublishing(msg)
	}
}

// FromPublishing converts an AMQP publishing into a produced message
func FromPublishing(msg amqp.Publishing) (*contracts.ProducedMessage, error) {
	contents, err := decodeBody(msg.ContentType, msg.Body)
	if err != nil {
		return nil, err
	}

	return &contracts.ProducedMessage{
		Contents: contents,
		Metadata: metadata(msg),
	}, nil
}

func decodeBody(contentType string, body []byte) (interface{}, error) {
	if len(body) == 0 {
		return nil, nil
	}

	if isJSON(contentType) {
		if !json.Valid(body) {
			return nil, fmt.Errorf("body is not valid JSON for content type %q", contentType)
		}
		return json.RawMessage(body), nil
	}

	if contentType == "" && json.Valid(body) {
		return json.RawMessage(body), nil
	}

	return string(body), nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func metadata(msg amqp.Publishing) map[string]interface{} {
	md := make(map[string]interface{})

	set := func(key, value string) {
		if value != "" {
			md[key] = value
		}
	}
	set("contentType", msg.ContentType)
	set("contentEncoding", msg.ContentEncoding)
	set("correlationId", msg.CorrelationId)
	set("replyTo", msg.ReplyTo)
	set("expiration", msg.Expiration)
	set("messageId", msg.MessageId)
	set("type", msg.Type)
	set("userId", msg.UserId)
	set("appId", msg.AppId)

	if msg.DeliveryMode == amqp.Persistent {
		md["persistent"] = true
	}
	if msg.Priority != 0 {
		md["priority"] = int(msg.Priority)
	}
	if !msg.Timestamp.IsZero() {
		md["timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339)
	}

	for k, v := range msg.Headers {
		md[k] = headerValue(v)
	}

	if len(md) == 0 {
		return nil
	}
	return md
}

// headerValue converts AMQP table values into JSON friendly values
func headerValue(v interface{}) interface{} {
	switch value := v.(type) {
	case []byte:
		return string(value)
	case time.Time:
		return value.UTC().Format(time.RFC3339)
	case amqp.Table:
		out := make(map[string]interface{}, len(value))
		for k, nested := range value {
			out[k] = headerValue(nested)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, nested := range value {
			out[i] = headerValue(nested)
		}
		return out
	case amqp.Decimal:
		return fmt.Sprintf("%de-%d", value.Value, value.Scale)
	default:
		return value
	}
}
