package alarm

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carlosefr/pialarm/internal/hw"
)

// dequeuePollInterval bounds the worker's wait for new sequences, so the
// stop signal is observed promptly even when the wake channel is quiet.
const dequeuePollInterval = 100 * time.Millisecond

// Beeper plays feedback beep sequences on the panel buzzer from its own
// goroutine. Beeps must be asynchronous: if callers played them inline they
// would skew the supervisor's timing loop.
type Beeper struct {
	log  *zap.SugaredLogger
	port hw.Port
	pin  int

	// quiet is the pause after each sequence. A field so tests can compress it.
	quiet time.Duration

	mu      sync.Mutex
	pending []Sequence

	// wake nudges the worker when a sequence is enqueued; 1-buffered so
	// enqueueing never blocks.
	wake chan struct{}

	stop chan struct{}
	done chan struct{}
}

// NewBeeper creates a beep scheduler for the given buzzer output pin.
// Call Start to launch the worker.
func NewBeeper(log *zap.SugaredLogger, port hw.Port, pin int) *Beeper {
	return &Beeper{
		log:   log,
		port:  port,
		pin:   pin,
		quiet: beepSequenceQuiet,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (b *Beeper) Start() {
	go b.run()
}

// Enqueue schedules a sequence for playback. With force false (the usual
// case) any sequences still waiting in the queue are discarded first: the
// newest feedback wins, but a sequence already mid-playback always finishes.
// With force true the sequence is appended behind the existing queue.
func (b *Beeper) Enqueue(seq Sequence, force bool) {
	b.mu.Lock()
	if !force && len(b.pending) > 0 {
		b.pending = b.pending[:0]
	}
	b.pending = append(b.pending, seq)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Stop signals the worker and waits for it to exit. The sequence being
// played (if any) completes first; afterwards the buzzer stays silent.
func (b *Beeper) Stop() {
	close(b.stop)
	<-b.done
}

func (b *Beeper) run() {
	defer close(b.done)

	b.log.Debug("Buzzer worker starting...")

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		seq, ok := b.dequeue()
		if !ok {
			select {
			case <-b.stop:
				return
			case <-b.wake:
			case <-time.After(dequeuePollInterval):
			}
			continue
		}

		b.log.Debugf("Beep sequence: %+v", seq)
		b.play(seq)

		select {
		case <-b.stop:
			return
		case <-time.After(b.quiet):
		}
	}
}

// dequeue pops the oldest pending sequence. Runs under the same lock as
// Enqueue, so clear-then-insert can never lose a sequence to the worker.
func (b *Beeper) dequeue() (Sequence, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return Sequence{}, false
	}
	seq := b.pending[0]
	b.pending = b.pending[1:]
	return seq, true
}

// play drives one full sequence on the buzzer. Write failures abort the
// sequence: feedback is best-effort and must not take the process down.
func (b *Beeper) play(seq Sequence) {
	for remaining := seq.Times; remaining > 0; remaining-- {
		if err := b.port.WriteOutput(b.pin, true); err != nil {
			b.log.Errorf("Buzzer write failed: %v", err)
			return
		}
		time.Sleep(seq.Duration)
		if err := b.port.WriteOutput(b.pin, false); err != nil {
			b.log.Errorf("Buzzer write failed: %v", err)
			return
		}
		if remaining > 1 {
			time.Sleep(seq.Interval)
		}
	}
}
