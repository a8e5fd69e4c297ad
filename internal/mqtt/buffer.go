package mqtt

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while the broker
// is unreachable. Not safe for concurrent use — caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

// push appends a message, overwriting the oldest when full.
// Returns true if a message was dropped to make room.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	dropped := r.count == r.capacity
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	if !dropped {
		r.count++
	}
	return dropped
}

// drainAll returns all buffered messages oldest-first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
