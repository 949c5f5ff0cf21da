package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mmdatafocus/autosync_backend/autosync"
	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/utils"
)

// Publishes auto-sync events so the running service repairs the given orders
// right away instead of waiting for the next polling pass.
func main() {
	clientID := flag.String("client-id", "", "Tenant that owns the orders (required).")
	orderIDs := flag.String("order-ids", "", "Comma-separated order ids (required).")
	event := flag.String("event", string(autosync.EventOrderPaid), "Event type: order.paid or payment.created.")
	flag.Parse()

	if strings.TrimSpace(*clientID) == "" || strings.TrimSpace(*orderIDs) == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !config.PubSubConfigured() {
		fmt.Fprintln(os.Stderr, "PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
		os.Exit(1)
	}
	defer config.ClosePubSub()

	ctx := utils.SetCorrelationIdInContext(context.Background(), "replay-order-events")

	failures := 0
	for _, raw := range strings.Split(*orderIDs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid order id %q\n", raw)
			failures++
			continue
		}
		msgID, err := autosync.PublishOrderEvent(ctx, autosync.OrderEvent{
			Event:    autosync.EventType(strings.TrimSpace(*event)),
			ClientId: strings.TrimSpace(*clientID),
			OrderId:  id,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "order %d: publish failed: %v\n", id, err)
			failures++
			continue
		}
		fmt.Printf("order=%d published message_id=%s\n", id, msgID)
	}
	if failures > 0 {
		os.Exit(1)
	}
}
