package scheduler

import (
	"fmt"
	"sort"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	snap := Snapshot{Running: s.c != nil, Timezone: loc.String(), Pending: len(s.once)}

	for _, d := range s.intervals {
		it := ScheduleInfo{Name: d.name, Kind: "interval", Spec: fmt.Sprintf("@every %s", d.every), Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	for _, d := range s.once {
		snap.Schedules = append(snap.Schedules, ScheduleInfo{Name: d.name, Kind: "once", Spec: "once", Timeout: d.timeout, Next: d.at.In(loc)})
	}
	sort.Slice(snap.Schedules, func(i, j int) bool {
		a, b := snap.Schedules[i], snap.Schedules[j]
		if !a.Next.Equal(b.Next) {
			return a.Next.Before(b.Next)
		}
		return a.Name < b.Name
	})
	return snap
}
