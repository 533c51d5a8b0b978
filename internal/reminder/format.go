package reminder

import (
	"fmt"
	"strings"
	"time"

	"homebot/internal/storage"
)

// TimeLayout is how reminder times are spoken and shown.
const TimeLayout = "2006-01-02 15:04"

// FormatWhen renders t in loc using TimeLayout.
func FormatWhen(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimeLayout)
}

// Message renders the spoken reminder. Empty notes leave no trailing space.
func Message(display string, s storage.Schedule, loc *time.Location) string {
	msg := fmt.Sprintf("Reminder for %s: %s at %s. %s", display, s.Title, FormatWhen(s.When, loc), s.Notes)
	return strings.TrimSpace(msg)
}

// JobName is the scheduler trigger name for a schedule id.
func JobName(id int64) string { return fmt.Sprintf("reminder-%d", id) }
