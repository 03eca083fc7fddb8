package booking

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

const maxNotesLength = 2000

var phonePattern = regexp.MustCompile(`^\+?[0-9 ().\-]{7,20}$`)

// Policy bounds what a booking or reschedule may request.
type Policy struct {
	// MinLeadTime is how far ahead of now a viewing must start.
	MinLeadTime  time.Duration
	MinDuration  int
	MaxDuration  int
	MaxAttendees int
}

func DefaultPolicy() Policy {
	return Policy{
		MinLeadTime:  time.Hour,
		MinDuration:  15,
		MaxDuration:  240,
		MaxAttendees: 10,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MinLeadTime < 0 {
		p.MinLeadTime = 0
	}
	if p.MinDuration <= 0 {
		p.MinDuration = d.MinDuration
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = d.MaxDuration
	}
	return p
}

// EarliestStart is the first instant a new or moved viewing may begin.
func (p Policy) EarliestStart(now time.Time) time.Time {
	return now.Add(p.MinLeadTime)
}

// checkSlot validates a requested start and duration against the lead time
// and duration bounds.
func (p Policy) checkSlot(start time.Time, minutes int, now time.Time, startField, durationField string) error {
	if start.IsZero() {
		return model.Invalid(startField, "required")
	}
	if !start.After(now) {
		return model.Invalid(startField, "must be in the future")
	}
	if start.Before(p.EarliestStart(now)) {
		return model.Invalid(startField, "must be at least "+p.MinLeadTime.String()+" ahead")
	}
	if minutes < p.MinDuration || minutes > p.MaxDuration {
		return model.Invalid(durationField, "must be between "+strconv.Itoa(p.MinDuration)+" and "+strconv.Itoa(p.MaxDuration)+" minutes")
	}
	return nil
}

func (p Policy) checkRequest(req *BookRequest, now time.Time) error {
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.PropertyID = strings.TrimSpace(req.PropertyID)
	req.ClientContact.Name = strings.TrimSpace(req.ClientContact.Name)
	req.ClientContact.Email = strings.TrimSpace(req.ClientContact.Email)
	req.ClientContact.Phone = strings.TrimSpace(req.ClientContact.Phone)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if req.AgentID == "" {
		return model.Invalid("agentId", "required")
	}
	if req.PropertyID == "" {
		return model.Invalid("propertyId", "required")
	}
	if err := p.checkSlot(req.ScheduledStart, req.DurationMinutes, now, "scheduledStart", "duration"); err != nil {
		return err
	}
	if !req.ViewingType.Valid() {
		return model.Invalid("viewingType", "must be one of in_person, virtual, self_guided")
	}
	if req.AttendeeCount < 1 {
		return model.Invalid("attendeeCount", "must be at least 1")
	}
	if p.MaxAttendees > 0 && req.AttendeeCount > p.MaxAttendees {
		return model.Invalid("attendeeCount", "must be at most "+strconv.Itoa(p.MaxAttendees))
	}
	if err := checkContact(req.ClientContact); err != nil {
		return err
	}
	if utf8.RuneCountInString(req.Notes) > maxNotesLength {
		return model.Invalid("notes", "must be at most "+strconv.Itoa(maxNotesLength)+" characters")
	}
	return nil
}

func checkContact(c model.ClientContact) error {
	if c.Name == "" {
		return model.Invalid("clientContact.name", "required")
	}
	if c.Email == "" {
		return model.Invalid("clientContact.email", "required")
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil || addr.Address != c.Email {
		return model.Invalid("clientContact.email", "malformed")
	}
	if c.Phone != "" && !phonePattern.MatchString(c.Phone) {
		return model.Invalid("clientContact.phone", "malformed")
	}
	return nil
}
