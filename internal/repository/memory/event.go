package memory

import (
	"context"

	"ridedispatch/internal/domain"
)

type eventRepo struct {
	store *Store
	inTx  bool
}

func (r *eventRepo) Append(ctx context.Context, event *domain.RideEvent) error {
	defer r.store.lock(r.inTx)()

	st := &r.store.state
	st.nextEventID++
	event.ID = st.nextEventID

	stored := *event
	stored.Payload = copyPayload(event.Payload)
	st.events = append(st.events, stored)
	return nil
}

func (r *eventRepo) ListByRide(ctx context.Context, rideID string) ([]*domain.RideEvent, error) {
	defer r.store.lock(r.inTx)()

	var events []*domain.RideEvent
	for _, e := range r.store.state.events {
		if e.RideID == rideID {
			e := e
			e.Payload = copyPayload(e.Payload)
			events = append(events, &e)
		}
	}
	return events, nil
}

func copyPayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	c := make(map[string]any, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
