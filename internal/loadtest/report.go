package loadtest

import (
	"fmt"
	"io"
	"strings"
	"time"
)

type RampResult struct {
	Target    int           `json:"target"`
	Connected int           `json:"connected"`
	Observed  int           `json:"observed"`
	Converged bool          `json:"converged"`
	Elapsed   time.Duration `json:"elapsed"`
}

type FaultResult struct {
	Killed    int           `json:"killed"`
	Survivors int           `json:"survivors"`
	Observed  int           `json:"observed"`
	Reaped    bool          `json:"reaped"`
	ReapTime  time.Duration `json:"reapTime"`
}

type SettleResult struct {
	Settled bool          `json:"settled"`
	Rooms   int           `json:"rooms"`
	Clients int           `json:"clients"`
	Elapsed time.Duration `json:"elapsed"`
}

type LeakResult struct {
	Cycles          int            `json:"cycles"`
	ClientsPerCycle int            `json:"clientsPerCycle"`
	Skipped         bool           `json:"skipped"`
	Reason          string         `json:"reason,omitempty"`
	Settled         bool           `json:"settled"`
	Baseline        MemorySample   `json:"baseline"`
	Samples         []MemorySample `json:"samples"`
	GrowthPerCycle  uint64         `json:"growthPerCycle"`
	Traffic         Summary        `json:"traffic"`
}

type Report struct {
	Target     string     `json:"target"`
	Clients    int        `json:"clients"`
	Rooms      int        `json:"rooms"`
	Mode       Mode       `json:"mode"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Thresholds Thresholds `json:"thresholds"`

	Ramp           RampResult    `json:"ramp"`
	Traffic        Summary       `json:"traffic"`
	SteadyDuration time.Duration `json:"steadyDuration"`
	Throughput     float64       `json:"throughput"`
	Fault          *FaultResult  `json:"fault,omitempty"`
	Teardown       SettleResult  `json:"teardown"`
	Leak           *LeakResult   `json:"leak,omitempty"`

	Failures []string `json:"failures"`
	Passed   bool     `json:"passed"`
}

// Evaluate grades the report against its thresholds and fills Failures.
func (r *Report) Evaluate() {
	th := r.Thresholds
	var f []string
	fail := func(format string, args ...any) { f = append(f, fmt.Sprintf(format, args...)) }

	if s := r.Traffic.ConnectSuccess(); s < th.MinConnectSuccess {
		fail("connection success %.1f%% below %.1f%%", s*100, th.MinConnectSuccess*100)
	}
	if !r.Ramp.Converged {
		fail("connected count %d did not converge to %d", r.Ramp.Observed, r.Ramp.Target)
	}
	if e := r.Traffic.ErrorRate(); e > th.MaxErrorRate {
		fail("error rate %.2f%% above %.2f%%", e*100, th.MaxErrorRate*100)
	}
	if th.MaxP95Latency > 0 && r.Traffic.LatencyP95 > th.MaxP95Latency {
		fail("p95 latency %s above %s", r.Traffic.LatencyP95, th.MaxP95Latency)
	}
	if th.MaxLatency > 0 && r.Traffic.LatencyMax > th.MaxLatency {
		fail("max latency %s above %s", r.Traffic.LatencyMax, th.MaxLatency)
	}
	if th.MinThroughput > 0 && r.SteadyDuration > 0 && r.Throughput < th.MinThroughput {
		fail("throughput %.1f msg/s below %.1f", r.Throughput, th.MinThroughput)
	}
	if r.Fault != nil && !r.Fault.Reaped {
		fail("%d killed clients not reaped: relay still reports %d, want %d",
			r.Fault.Killed, r.Fault.Observed, r.Fault.Survivors)
	}
	if !r.Teardown.Settled {
		fail("relay kept %d rooms / %d clients after disconnect", r.Teardown.Rooms, r.Teardown.Clients)
	}
	if l := r.Leak; l != nil && !l.Skipped {
		if !l.Settled {
			fail("relay did not drain between leak cycles")
		}
		if l.GrowthPerCycle > th.MaxLeakBytesPerCycle {
			fail("heap grew %s per cycle, limit %s", bytesHuman(l.GrowthPerCycle), bytesHuman(th.MaxLeakBytesPerCycle))
		}
	}

	r.Failures = f
	r.Passed = len(f) == 0
}

func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	t := r.Traffic

	fmt.Fprintf(&b, "collab-relay load test against %s (%s mode)\n", r.Target, r.Mode)
	fmt.Fprintf(&b, "  clients %d across %d rooms, ran %s\n", r.Clients, r.Rooms, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "ramp-up\n")
	fmt.Fprintf(&b, "  connected %d/%d (relay saw %d, converged=%t) in %s, dial p50 %s\n",
		r.Ramp.Connected, r.Ramp.Target, r.Ramp.Observed, r.Ramp.Converged,
		r.Ramp.Elapsed.Round(time.Millisecond), t.DialP50.Round(time.Microsecond))
	fmt.Fprintf(&b, "steady state (%s)\n", r.SteadyDuration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  sent %d, delivered %d, throughput %.1f msg/s\n", t.Sent, t.Received, r.Throughput)
	fmt.Fprintf(&b, "  latency p50 %s  p95 %s  p99 %s  max %s\n",
		t.LatencyP50.Round(time.Microsecond), t.LatencyP95.Round(time.Microsecond),
		t.LatencyP99.Round(time.Microsecond), t.LatencyMax.Round(time.Microsecond))
	fmt.Fprintf(&b, "  connection success %.1f%%, error rate %.2f%%\n", t.ConnectSuccess()*100, t.ErrorRate()*100)
	if f := r.Fault; f != nil {
		fmt.Fprintf(&b, "fault injection\n")
		fmt.Fprintf(&b, "  killed %d, survivors %d, reaped=%t in %s\n", f.Killed, f.Survivors, f.Reaped, f.ReapTime.Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "teardown\n")
	fmt.Fprintf(&b, "  settled=%t (rooms %d, clients %d) in %s\n",
		r.Teardown.Settled, r.Teardown.Rooms, r.Teardown.Clients, r.Teardown.Elapsed.Round(time.Millisecond))
	if l := r.Leak; l != nil {
		fmt.Fprintf(&b, "leak detection (%d x %d clients)\n", l.Cycles, l.ClientsPerCycle)
		if l.Skipped {
			fmt.Fprintf(&b, "  skipped: %s\n", l.Reason)
		} else {
			fmt.Fprintf(&b, "  baseline heap %s", bytesHuman(l.Baseline.HeapInuse))
			for i, s := range l.Samples {
				fmt.Fprintf(&b, ", #%d %s", i+1, bytesHuman(s.HeapInuse))
			}
			fmt.Fprintf(&b, "\n  growth per cycle %s\n", bytesHuman(l.GrowthPerCycle))
		}
	}
	if r.Passed {
		fmt.Fprintf(&b, "PASS\n")
	} else {
		fmt.Fprintf(&b, "FAIL\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func bytesHuman(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
