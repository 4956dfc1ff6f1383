package notify

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

const productID = "-//appointment-booking//notify//EN"

func buildMIME(from, to string, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader := func(key, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}
	writeHeader("From", from)
	writeHeader("To", to)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", now.Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")

	if msg.Event == nil {
		writeHeader("Content-Type", `text/plain; charset="utf-8"`)
		writeHeader("Content-Transfer-Encoding", "8bit")
		buf.WriteString("\r\n")
		buf.WriteString(crlf(msg.Body))
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/plain; charset="utf-8"`},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, fmt.Errorf("notify: create text part: %w", err)
	}
	if _, err := textPart.Write([]byte(crlf(msg.Body))); err != nil {
		return nil, fmt.Errorf("notify: write text part: %w", err)
	}

	calPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":        {`text/calendar; charset="utf-8"; method=REQUEST`},
		"Content-Disposition": {`attachment; filename="invite.ics"`},
	})
	if err != nil {
		return nil, fmt.Errorf("notify: create calendar part: %w", err)
	}
	if _, err := calPart.Write([]byte(inviteCalendar(from, to, *msg.Event, now))); err != nil {
		return nil, fmt.Errorf("notify: write calendar part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("notify: close multipart: %w", err)
	}

	writeHeader("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func inviteCalendar(organizer, attendee string, event Event, now time.Time) string {
	uid := event.UID
	if uid == "" {
		uid = uuid.NewString()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId(productID)

	vevent := cal.AddEvent(uid)
	vevent.SetDtStampTime(now)
	vevent.SetStartAt(event.Start)
	vevent.SetEndAt(event.End)
	vevent.SetSummary(event.Summary)
	if event.Description != "" {
		vevent.SetDescription(event.Description)
	}
	vevent.SetStatus(ics.ObjectStatusConfirmed)
	vevent.SetOrganizer("mailto:" + organizer)
	vevent.AddAttendee("mailto:" + attendee)
	return cal.Serialize()
}

func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
