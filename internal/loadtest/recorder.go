package loadtest

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Recorder aggregates what every harness client observes. Safe for
// concurrent use.
type Recorder struct {
	mu sync.Mutex

	dialAttempts int
	dialOK       int
	dialFailed   int
	sent         int
	sendErrors   int
	received     int
	readErrors   int
	latencies    []time.Duration
	dialTimes    []time.Duration
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) dial(d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialAttempts++
	if err != nil {
		r.dialFailed++
		return
	}
	r.dialOK++
	r.dialTimes = append(r.dialTimes, d)
}

func (r *Recorder) send(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.sendErrors++
		return
	}
	r.sent++
}

func (r *Recorder) receive(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received++
	if latency >= 0 {
		r.latencies = append(r.latencies, latency)
	}
}

func (r *Recorder) readError() {
	r.mu.Lock()
	r.readErrors++
	r.mu.Unlock()
}

// Summary is a point-in-time digest of a Recorder.
type Summary struct {
	DialAttempts int `json:"dialAttempts"`
	DialOK       int `json:"dialOk"`
	DialFailed   int `json:"dialFailed"`
	Sent         int `json:"sent"`
	SendErrors   int `json:"sendErrors"`
	Received     int `json:"received"`
	ReadErrors   int `json:"readErrors"`

	DialP50    time.Duration `json:"dialP50"`
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`
	LatencyMax time.Duration `json:"latencyMax"`
}

func (s Summary) ConnectSuccess() float64 {
	if s.DialAttempts == 0 {
		return 0
	}
	return float64(s.DialOK) / float64(s.DialAttempts)
}

// ErrorRate counts failed dials, failed writes and unexpected read errors
// against everything that was attempted.
func (s Summary) ErrorRate() float64 {
	attempts := s.DialAttempts + s.Sent + s.SendErrors
	if attempts == 0 {
		return 0
	}
	return float64(s.DialFailed+s.SendErrors+s.ReadErrors) / float64(attempts)
}

func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	lat := append([]time.Duration(nil), r.latencies...)
	dials := append([]time.Duration(nil), r.dialTimes...)
	s := Summary{
		DialAttempts: r.dialAttempts,
		DialOK:       r.dialOK,
		DialFailed:   r.dialFailed,
		Sent:         r.sent,
		SendErrors:   r.sendErrors,
		Received:     r.received,
		ReadErrors:   r.readErrors,
	}
	r.mu.Unlock()

	sortDurations(lat)
	sortDurations(dials)
	s.DialP50 = percentile(dials, 50)
	s.LatencyP50 = percentile(lat, 50)
	s.LatencyP95 = percentile(lat, 95)
	s.LatencyP99 = percentile(lat, 99)
	if len(lat) > 0 {
		s.LatencyMax = lat[len(lat)-1]
	}
	return s
}

func sortDurations(d []time.Duration) {
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
