package domain

import "time"

type RelayCounters struct {
	ConnectionsAccepted int64 `json:"connectionsAccepted"`
	ConnectionsRejected int64 `json:"connectionsRejected"`
	ConnectionsClosed   int64 `json:"connectionsClosed"`
	FramesIn            int64 `json:"framesIn"`
	MessagesRelayed     int64 `json:"messagesRelayed"`
	OpaqueBytesRelayed  int64 `json:"opaqueBytesRelayed"`
	ParseErrors         int64 `json:"parseErrors"`
	DroppedUnknown      int64 `json:"droppedUnknown"`
	SendFailures        int64 `json:"sendFailures"`
	QueueOverflows      int64 `json:"queueOverflows"`
	HeartbeatTimeouts   int64 `json:"heartbeatTimeouts"`
}

type MemoryStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapInuse  uint64 `json:"heapInuse"`
	RSS        uint64 `json:"rss"`
}

// StatsSnapshot is one periodic observation of the relay.
type StatsSnapshot struct {
	ID       string        `db:"id" json:"id"`
	Instance string        `db:"instance" json:"instance"`
	Rooms    int           `db:"rooms" json:"rooms"`
	Clients  int           `db:"clients" json:"clients"`
	Counters RelayCounters `db:"counters" json:"counters"`
	Memory   MemoryStats   `db:"memory" json:"memory"`
	TakenAt  time.Time     `db:"taken_at" json:"takenAt"`
}
