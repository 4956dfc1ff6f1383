// Package export renders booking listings as CSV and iCalendar documents.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/example/appointment-booking/internal/application"
)

// TimestampLayout is used for every time column in CSV output.
const TimestampLayout = "2006-01-02T15:04:05"

const productID = "-//appointment-booking//export//EN"

// CSVHeader lists the exported columns in order.
var CSVHeader = []string{"booking_id", "slot_id", "start", "end", "name", "email", "phone", "notes", "status", "created_at"}

// WriteCSV writes one row per booking after the header.
func WriteCSV(w io.Writer, bookings []application.Booking) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, b := range bookings {
		record := []string{
			b.ID,
			b.SlotID,
			formatTime(b.SlotStart),
			formatTime(b.SlotEnd),
			b.Contact.Name,
			b.Contact.Email,
			b.Contact.Phone,
			b.Contact.Notes,
			string(b.Status),
			formatTime(b.CreatedAt),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write booking %s: %w", b.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteICS writes a calendar with one event per active booking. Canceled bookings are skipped.
func WriteICS(w io.Writer, name string, bookings []application.Booking, stamp time.Time) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetName(name)
	}

	for _, b := range bookings {
		if b.Status != application.BookingStatusBooked {
			continue
		}
		event := cal.AddEvent(b.ID)
		event.SetDtStampTime(stamp)
		event.SetCreatedTime(b.CreatedAt)
		event.SetStartAt(b.SlotStart)
		event.SetEndAt(b.SlotEnd)
		event.SetSummary(summary(b))
		event.SetDescription(description(b))
		event.SetStatus(ics.ObjectStatusConfirmed)
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("export: write calendar: %w", err)
	}
	return nil
}

func summary(b application.Booking) string {
	if b.Contact.Name == "" {
		return "Booking"
	}
	return "Booking: " + b.Contact.Name
}

func description(b application.Booking) string {
	desc := fmt.Sprintf("Email: %s", b.Contact.Email)
	if b.Contact.Phone != "" {
		desc += fmt.Sprintf("\nPhone: %s", b.Contact.Phone)
	}
	if b.Contact.Notes != "" {
		desc += fmt.Sprintf("\nNotes: %s", b.Contact.Notes)
	}
	return desc
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}
