package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/CareForge/internal/domain/prescription"
	"github.com/Strob0t/CareForge/internal/port/messagequeue"
	"github.com/Strob0t/CareForge/internal/port/notifier"
)

// StartPrescriptionAudit consumes prescription status events from the queue
// and writes one audit record per transition. Transitions that need operator
// attention are also sent to n, which may be nil. The returned function stops
// the subscription.
func StartPrescriptionAudit(ctx context.Context, q messagequeue.Queue, n notifier.Notifier, log *slog.Logger) (func(), error) {
	log = log.With("component", "audit")
	return q.Subscribe(ctx, messagequeue.SubjectPrescriptionStatus, func(ctx context.Context, subject string, data []byte) error {
		var p messagequeue.PrescriptionStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", subject, err)
		}
		log.InfoContext(ctx, "prescription status changed",
			"prescription_id", p.PrescriptionID,
			"member_id", p.MemberID,
			"from", p.From,
			"to", p.To,
			"refills_remaining", p.RefillsRemaining,
		)

		if n == nil {
			return nil
		}
		alert, ok := statusAlert(&p)
		if !ok {
			return nil
		}
		alert.Source = subject
		// Redelivery would duplicate the audit record, so a failed alert is only logged.
		if err := n.Send(ctx, alert); err != nil {
			log.WarnContext(ctx, "status alert not delivered",
				"notifier", n.Name(), "prescription_id", p.PrescriptionID, "error", err)
		}
		return nil
	})
}

// statusAlert returns the notification for transitions worth alerting on.
func statusAlert(p *messagequeue.PrescriptionStatusPayload) (notifier.Notification, bool) {
	switch prescription.Status(p.To) {
	case prescription.StatusRejected:
		return notifier.Notification{
			Title:   "Prescription rejected",
			Message: fmt.Sprintf("Prescription %s for member %s was rejected.", p.PrescriptionID, p.MemberID),
			Level:   notifier.LevelWarning,
		}, true
	case prescription.StatusCancelled:
		return notifier.Notification{
			Title:   "Prescription cancelled",
			Message: fmt.Sprintf("Prescription %s for member %s was cancelled from %s.", p.PrescriptionID, p.MemberID, p.From),
			Level:   notifier.LevelInfo,
		}, true
	case prescription.StatusFilled:
		if p.RefillsRemaining > 0 {
			return notifier.Notification{}, false
		}
		return notifier.Notification{
			Title:   "Refills exhausted",
			Message: fmt.Sprintf("Prescription %s for member %s has no refills remaining.", p.PrescriptionID, p.MemberID),
			Level:   notifier.LevelInfo,
		}, true
	default:
		return notifier.Notification{}, false
	}
}
