package domain

import (
	"sort"
	"time"
)

// RecordEvent snapshots batch at now. It does not persist anything.
func RecordEvent(batch Batch, eventType EventType, now time.Time) BatchEvent {
	return BatchEvent{
		BatchID:           batch.ID,
		EventDate:         now.UTC(),
		EventType:         eventType,
		AvailableQuantity: batch.AvailableQuantity,
		Freshness:         batch.FreshnessAt(now),
	}
}

// RemovalEventType picks the event recorded after portions were removed.
func RemovalEventType(remaining int) EventType {
	if remaining == 0 {
		return EventEmptied
	}
	return EventPortionsRemoved
}

// SortEventsByDate orders events ascending by EventDate. Events sharing a
// timestamp keep their stored order.
func SortEventsByDate(events []BatchEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventDate.Before(events[j].EventDate)
	})
}
