package autosync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/store"
	"github.com/mmdatafocus/autosync_backend/utils"
	"github.com/sirupsen/logrus"
)

const repairOrderHandlerName = "autosync_repair_order"

type EventType string

const (
	EventPaymentCreated EventType = "payment.created"
	EventOrderPaid      EventType = "order.paid"
)

// OrderEvent is published by order entry when money moves on an order.
type OrderEvent struct {
	Event    EventType `json:"event" validate:"required,oneof=payment.created order.paid"`
	ClientId string    `json:"client_id" validate:"required"`
	OrderId  int       `json:"order_id" validate:"required,gt=0"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

var eventValidator = validator.New()

func topicName() string {
	if name := strings.TrimSpace(os.Getenv("AUTOSYNC_TOPIC")); name != "" {
		return name
	}
	return "autosync-events"
}

// PublishOrderEvent lets other services trigger an immediate repair of one order.
// It returns the server-assigned message id.
func PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	return publishOrderEvent(ctx, client, event)
}

func publishOrderEvent(ctx context.Context, client *pubsub.Client, event OrderEvent) (string, error) {
	if err := eventValidator.Struct(event); err != nil {
		return "", err
	}
	topic := client.Topic(topicName())
	if config.EnvBool("AUTOSYNC_CREATE_TOPIC", false) {
		var err error
		topic, err = config.CreateTopicIfNotExists(ctx, client, topicName())
		if err != nil {
			return "", err
		}
	}
	defer topic.Stop()

	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	attrs := map[string]string{"client_id": event.ClientId, "event": string(event.Event)}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		attrs["correlation_id"] = cid
	}
	return topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// PubSubPushHandler repairs the order named by a pushed event. Malformed deliveries
// are acked with 204; a failed repair answers 500 so Pub/Sub redelivers it.
func PubSubPushHandler(engine *Engine, idem store.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBool("ENABLE_AUTOSYNC_PUSH_ENDPOINT", true) {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		var event OrderEvent
		if err := json.Unmarshal(envelope.Message.Data, &event); err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		if err := eventValidator.Struct(event); err != nil {
			engine.Logger.WithFields(logrus.Fields{
				"field":      "PubSubPushHandler",
				"message_id": envelope.Message.ID,
			}).Warn("dropping invalid auto-sync event")
			c.Status(http.StatusNoContent)
			return
		}

		ctx := c.Request.Context()
		messageId := envelope.Message.ID
		if idem != nil && messageId != "" {
			skip, err := idem.BeginIdempotency(ctx, event.ClientId, repairOrderHandlerName, messageId)
			if errors.Is(err, store.ErrIdempotencyInProgress) {
				c.Status(http.StatusServiceUnavailable)
				return
			}
			if err != nil {
				config.LogError(engine.Logger, moduleName, "PubSubPushHandler", "begin idempotency", messageId, err)
				c.Status(http.StatusInternalServerError)
				return
			}
			if skip {
				c.Status(http.StatusNoContent)
				return
			}
		}

		_, repairErr := engine.RepairOrder(ctx, event.ClientId, event.OrderId)
		if idem != nil && messageId != "" {
			var markErr error
			if repairErr != nil {
				markErr = idem.MarkIdempotencyFailed(ctx, event.ClientId, repairOrderHandlerName, messageId, repairErr)
			} else {
				markErr = idem.MarkIdempotencySucceeded(ctx, event.ClientId, repairOrderHandlerName, messageId)
			}
			if markErr != nil {
				config.LogError(engine.Logger, moduleName, "PubSubPushHandler", "mark idempotency", messageId, markErr)
			}
		}
		if repairErr != nil {
			config.LogError(engine.Logger, moduleName, "PubSubPushHandler", "repair order", event, repairErr)
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
