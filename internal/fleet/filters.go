package fleet

import "sort"

// LocationFilter narrows a location snapshot the way the admin and student
// views consume it. Empty fields match everything.
type LocationFilter struct {
	OnlineOnly bool
	RouteID    string
	VanID      string
}

func (f LocationFilter) Match(r LocationRecord) bool {
	if f.OnlineOnly && !r.IsOnline {
		return false
	}
	if f.RouteID != "" && r.RouteID != f.RouteID {
		return false
	}
	if f.VanID != "" && r.VanID != f.VanID {
		return false
	}
	return true
}

// FilterLocations returns matching records ordered by bus id.
func FilterLocations(records []LocationRecord, f LocationFilter) []LocationRecord {
	out := make([]LocationRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BusID < out[j].BusID })
	return out
}

// FilterAlerts keeps alerts whose resolution state matches resolved (nil keeps
// all), newest detection first.
func FilterAlerts(alerts []StoppageAlert, resolved *bool) []StoppageAlert {
	out := make([]StoppageAlert, 0, len(alerts))
	for _, a := range alerts {
		if resolved != nil && a.IsResolved != *resolved {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out
}
