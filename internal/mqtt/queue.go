package mqtt

import (
	"go.uber.org/zap"

	"github.com/sweeney/occupancy-node/internal/logging"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	event    string
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outageQueue holds lifecycle events while the broker is unreachable.
//
// Non-retained events of the same kind coalesce: only the newest heartbeat
// is worth replaying. When full, non-retained entries are evicted before
// retained ones, so the latest retained event always survives.
// Not safe for concurrent use; caller must synchronize.
type outageQueue struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int
}

func newOutageQueue(capacity int) *outageQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &outageQueue{capacity: capacity}
}

func (q *outageQueue) push(msg bufferedMsg) {
	if !msg.retained {
		q.remove(func(m bufferedMsg) bool { return !m.retained && m.event == msg.event })
	}

	if len(q.msgs) == q.capacity {
		victim := 0
		for i, m := range q.msgs {
			if !m.retained {
				victim = i
				break
			}
		}
		if q.dropped == 0 {
			logging.Warn("mqtt outage queue full, dropping event",
				zap.Int("capacity", q.capacity),
				zap.String("event", q.msgs[victim].event),
			)
		}
		q.dropped++
		q.msgs = append(q.msgs[:victim], q.msgs[victim+1:]...)
	}

	q.msgs = append(q.msgs, msg)
}

func (q *outageQueue) remove(match func(bufferedMsg) bool) {
	kept := q.msgs[:0]
	for _, m := range q.msgs {
		if !match(m) {
			kept = append(kept, m)
		}
	}
	q.msgs = kept
}

// drainAll returns queued events oldest first and empties the queue.
func (q *outageQueue) drainAll() []bufferedMsg {
	if len(q.msgs) == 0 {
		return nil
	}
	out := q.msgs
	q.msgs = nil
	if q.dropped > 0 {
		logging.Info("mqtt events dropped during outage", zap.Int("dropped", q.dropped))
		q.dropped = 0
	}
	return out
}

func (q *outageQueue) len() int {
	return len(q.msgs)
}
