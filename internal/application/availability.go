package application

import "github.com/example/appointment-booking/internal/persistence"

// AvailableSeats is capacity minus booked seats, floored at zero.
func AvailableSeats(capacity, booked int) int {
	if remaining := capacity - booked; remaining > 0 {
		return remaining
	}
	return 0
}

func toSlot(record persistence.Slot) Slot {
	return Slot{
		ID:        record.ID,
		Start:     record.Start,
		End:       record.End,
		Capacity:  record.Capacity,
		CreatedBy: record.CreatedBy,
		CreatedAt: record.CreatedAt,
	}
}

func toSlotAvailability(occ persistence.SlotOccupancy) SlotAvailability {
	return SlotAvailability{
		Slot:      toSlot(occ.Slot),
		Booked:    occ.Booked,
		Available: AvailableSeats(occ.Slot.Capacity, occ.Booked),
	}
}
