package tracking

import (
	"context"
	"errors"
	"fmt"

	"fleet-tracker/internal/broadcast"
	"fleet-tracker/internal/fleet"
)

// AcknowledgeAlert marks an alert resolved. It is the only mutation of an
// alert after creation; acknowledging twice is a no-op.
func AcknowledgeAlert(ctx context.Context, store broadcast.Store, alertID string) (fleet.StoppageAlert, error) {
	var alert fleet.StoppageAlert
	if err := store.Read(ctx, broadcast.Alerts, alertID, &alert); err != nil {
		if errors.Is(err, broadcast.ErrNotFound) {
			return fleet.StoppageAlert{}, fmt.Errorf("%s: %w", alertID, ErrAlertNotFound)
		}
		return fleet.StoppageAlert{}, err
	}
	if alert.IsResolved {
		return alert, nil
	}
	alert.IsResolved = true
	if err := store.Write(ctx, broadcast.Alerts, alert.ID, alert); err != nil {
		return fleet.StoppageAlert{}, fmt.Errorf("acknowledge %s: %w", alertID, err)
	}
	return alert, nil
}
