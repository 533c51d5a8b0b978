// Package datetime parses spoken date-time phrases such as "tomorrow at 9am".
package datetime

import (
	"sync/atomic"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"homebot/internal/capability"
)

// Parser resolves English date-time expressions relative to a reference time.
type Parser struct {
	w   *when.Parser
	loc atomic.Pointer[time.Location]
}

var _ capability.DateParser = (*Parser)(nil)

// New returns a parser that interprets times in loc (Local when nil).
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	p := &Parser{w: w}
	p.loc.Store(loc)
	return p
}

// SetLocation swaps the interpretation timezone.
func (p *Parser) SetLocation(loc *time.Location) {
	if loc != nil {
		p.loc.Store(loc)
	}
}

// ParseDateTime returns the first date-time found in text, truncated to the second.
func (p *Parser) ParseDateTime(text string, now time.Time) (time.Time, bool) {
	res, err := p.w.Parse(text, now.In(p.loc.Load()))
	if err != nil || res == nil {
		return time.Time{}, false
	}
	return res.Time.Truncate(time.Second), true
}
