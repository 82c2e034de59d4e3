package vpaid

import (
	"fmt"
	"math"
)

// Quartile pairs a progress threshold (percent) with the event fired on crossing it
type Quartile struct {
	Threshold float64
	Event     EventName
}

// DefaultQuartiles is the standard video progress schedule
var DefaultQuartiles = []Quartile{
	{Threshold: 0, Event: AdVideoStart},
	{Threshold: 25, Event: AdVideoFirstQuartile},
	{Threshold: 50, Event: AdVideoMidpoint},
	{Threshold: 75, Event: AdVideoThirdQuartile},
	{Threshold: 100, Event: AdVideoComplete},
}

// ValidateQuartiles checks that a schedule is non-empty with strictly
// increasing thresholds inside [0,100].
func ValidateQuartiles(schedule []Quartile) error {
	if len(schedule) == 0 {
		return fmt.Errorf("quartile schedule is empty")
	}
	prev := math.Inf(-1)
	for i, q := range schedule {
		if q.Threshold < 0 || q.Threshold > 100 || math.IsNaN(q.Threshold) {
			return fmt.Errorf("quartile %d: threshold %v outside [0,100]", i, q.Threshold)
		}
		if q.Threshold <= prev {
			return fmt.Errorf("quartile %d: threshold %v not above %v", i, q.Threshold, prev)
		}
		if q.Event == "" {
			return fmt.Errorf("quartile %d: missing event name", i)
		}
		prev = q.Threshold
	}
	return nil
}

// QuartileReporter fires each scheduled event exactly once, in order, as
// progress crosses its threshold. The cursor never rewinds.
type QuartileReporter struct {
	schedule []Quartile
	next     int
	emit     func(EventName)
}

// NewQuartileReporter creates a reporter over schedule
func NewQuartileReporter(schedule []Quartile, emit func(EventName)) (*QuartileReporter, error) {
	if err := ValidateQuartiles(schedule); err != nil {
		return nil, err
	}
	return &QuartileReporter{
		schedule: append([]Quartile(nil), schedule...),
		emit:     emit,
	}, nil
}

// OnProgress fires every not yet fired event whose threshold is at or below
// percent and returns how many fired. One call may fire several events.
func (q *QuartileReporter) OnProgress(percent float64) int {
	if math.IsNaN(percent) {
		return 0
	}
	fired := 0
	for q.next < len(q.schedule) && percent >= q.schedule[q.next].Threshold {
		event := q.schedule[q.next].Event
		// advance before emitting so a reentrant call cannot fire it again
		q.next++
		fired++
		q.emit(event)
	}
	return fired
}

// Index returns the number of events fired so far
func (q *QuartileReporter) Index() int {
	return q.next
}

// Done reports whether every event has fired
func (q *QuartileReporter) Done() bool {
	return q.next >= len(q.schedule)
}
