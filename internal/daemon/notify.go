package daemon

import (
	"context"
	"time"

	"reqtrack/internal/logging"
	"reqtrack/internal/notifications"
	"reqtrack/internal/reconcile"
	"reqtrack/internal/requests"
)

const notifyTimeout = 15 * time.Second

// publish delivers the event in the background so request handling never
// waits on the push service. Stop waits for pending deliveries.
func (d *Daemon) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	d.notifyWG.Add(1)
	go func() {
		defer d.notifyWG.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := d.notifier.Publish(sendCtx, event, payload); err != nil {
			logging.WarnWithContext(d.logger, "notification failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "admins were not alerted"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	}()
}

func (d *Daemon) notifyCreated(ctx context.Context, req *requests.Request) {
	d.publish(ctx, notifications.EventRequestCreated, notifications.Payload{
		"id":        req.ID,
		"title":     req.Title,
		"mediaType": req.Media.MediaType,
		"requester": req.RequesterName,
	})
}

func (d *Daemon) notifyStatusChanged(ctx context.Context, req *requests.Request) {
	d.publish(ctx, notifications.EventStatusChanged, notifications.Payload{
		"id":     req.ID,
		"title":  req.Title,
		"status": string(req.Status),
		"note":   req.AdminNote,
	})
}

// notifyPass is registered as a reconciler pass hook.
func (d *Daemon) notifyPass(summary reconcile.PassSummary) {
	ctx := logging.WithPassID(context.Background(), summary.PassID)
	if summary.Aborted {
		d.publish(ctx, notifications.EventReconcileAborted, notifications.Payload{"error": summary.Error})
	}
	for _, id := range summary.FulfilledIDs {
		payload := notifications.Payload{"id": id}
		lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if req, err := d.store.Get(lookupCtx, id); err == nil {
			payload["title"] = req.Title
		}
		cancel()
		d.publish(ctx, notifications.EventRequestFulfilled, payload)
	}
}
