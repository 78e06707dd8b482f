package scheduling

import "time"

// SlotTimeLayout formats a slot's start for display, e.g. "09:30 AM".
const SlotTimeLayout = "03:04 PM"

// BuildSlots walks each window of date in SlotDuration steps and emits every
// slot that fits completely. Slots are concatenated in window order without
// merging; a slot whose start is in booked is marked unavailable. date
// supplies the calendar day and location.
func BuildSlots(date time.Time, windows []*Window, booked []time.Time) []Slot {
	occupied := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		occupied[b.UnixNano()] = struct{}{}
	}

	slots := []Slot{}
	for _, w := range windows {
		for cur := w.Start; w.Fits(cur, SlotDuration); cur = cur.Add(SlotDuration) {
			at := cur.On(date)
			_, taken := occupied[at.UnixNano()]
			slots = append(slots, Slot{
				At:            at,
				TimeFormatted: at.Format(SlotTimeLayout),
				IsAvailable:   !taken,
			})
		}
	}
	return slots
}

// dayBounds returns local midnight of date and of the following day.
func dayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}
