// Package audio implements buffered PCM16 playback with barge-in
// support: a bounded chunk queue feeding a playback worker that writes
// frame-aligned audio to a Sink, plus the position accounting needed to
// tell the server how much of a response was actually heard.
package audio

import (
	"sync"
	"time"

	"github.com/pepperkit/go-pepper/internal/log"
)

const (
	// queueCapacity bounds buffered chunks; at ~10-40 ms per chunk this
	// is a few seconds of audio. On overflow the oldest chunk is
	// dropped so playback stays near-live instead of lagging.
	queueCapacity = 150

	// prebufferChunks is how many chunks must arrive before the worker
	// starts the sink, absorbing network jitter at utterance start.
	prebufferChunks = 6

	// frameMs is the write granularity; partial frames are carried to
	// the next chunk so the sink only ever sees whole frames.
	frameMs = 10

	// drainTimeout caps how long Drain waits for the hardware to catch
	// up with the frames written.
	drainTimeout = 1500 * time.Millisecond

	// joinTimeout caps how long an interrupt waits for the worker to
	// acknowledge the stop flag.
	joinTimeout = 200 * time.Millisecond
)

// Player streams PCM16 chunks to a Sink. Chunks arrive from the network
// reader via Append; a dedicated worker goroutine aligns them to
// frameMs boundaries and writes them out. All methods are safe for
// concurrent use.
type Player struct {
	sink       Sink
	sampleRate int
	frameBytes int
	pool       *BufferPool

	mu         sync.Mutex
	cond       *sync.Cond
	queue      [][]byte
	stopping   bool
	closed     bool
	endOfAudio bool
	sinkLive   bool

	carry         []byte
	framesWritten int64
	baseline      int64

	workerDone chan struct{}

	// OnPlaybackStarted fires when the first frame of a response is
	// written to the sink, not when the first chunk arrives.
	OnPlaybackStarted func()

	// OnPlaybackEnded fires after the queue empties following
	// EndOfAudio and the hardware has drained.
	OnPlaybackEnded func()
}

// NewPlayer returns a stopped player; call Start before appending.
func NewPlayer(sink Sink, sampleRate int) *Player {
	p := &Player{
		sink:       sink,
		sampleRate: sampleRate,
		frameBytes: sampleRate * frameMs / 1000 * 2, // mono PCM16
		pool:       NewBufferPool(queueCapacity),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the playback worker.
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workerDone != nil || p.closed {
		return
	}
	p.workerDone = make(chan struct{})
	go p.run(p.workerDone)
}

// Append enqueues one PCM16 chunk for playback. The bytes are copied
// into a pooled buffer, so the caller may reuse pcm immediately. When
// the queue is full the oldest chunk is evicted.
func (p *Player) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	buf := p.pool.Get(len(pcm))
	copy(buf, pcm)

	p.mu.Lock()
	if p.closed || p.stopping {
		p.mu.Unlock()
		p.pool.Put(buf)
		return
	}
	if len(p.queue) >= queueCapacity {
		oldest := p.queue[0]
		p.queue = p.queue[1:]
		p.pool.Put(oldest)
		log.Debug("playback queue full, dropped oldest chunk")
	}
	p.queue = append(p.queue, buf)
	p.endOfAudio = false
	p.cond.Broadcast()
	p.mu.Unlock()
}

// EndOfAudio marks the current response's stream complete. Once the
// queue empties the worker drains the hardware and fires
// OnPlaybackEnded.
func (p *Player) EndOfAudio() {
	p.mu.Lock()
	p.endOfAudio = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// ResponseBoundary resets per-response accounting: the frame carry, the
// written-frame counter, and the hardware baseline used for position
// estimates. The buffer pool is flushed so no buffer crosses responses.
func (p *Player) ResponseBoundary() {
	p.mu.Lock()
	p.carry = nil
	p.framesWritten = 0
	p.baseline = p.sink.HeadPosition()
	p.mu.Unlock()
	p.pool.Flush()
}

// InterruptNow halts playback for barge-in: it stops the worker, drains
// the queue back to the pool, and tears the sink down. Each sink step
// is fault tolerant since a half-dead device must not block the
// interrupt. A fresh worker is started before returning.
func (p *Player) InterruptNow() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.stopping = true
	for _, buf := range p.queue {
		p.pool.Put(buf)
	}
	p.queue = nil
	p.carry = nil
	done := p.workerDone
	p.cond.Broadcast()
	p.mu.Unlock()

	if err := p.sink.Pause(); err != nil {
		log.Debug("pause sink during interrupt", "error", err)
	}
	if err := p.sink.Flush(); err != nil {
		log.Debug("flush sink during interrupt", "error", err)
	}
	if err := p.sink.Stop(); err != nil {
		log.Debug("stop sink during interrupt", "error", err)
	}

	if done != nil {
		select {
		case <-done:
		case <-time.After(joinTimeout):
			log.Warn("playback worker did not stop in time")
		}
	}

	p.mu.Lock()
	p.stopping = false
	p.sinkLive = false
	p.endOfAudio = false
	p.workerDone = make(chan struct{})
	go p.run(p.workerDone)
	p.mu.Unlock()
}

// EstimatedPositionMs reports how many milliseconds of the current
// response have been rendered, relative to the last boundary and never
// past what was actually written.
func (p *Player) EstimatedPositionMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	rel := p.sink.HeadPosition() - p.baseline
	if rel > p.framesWritten {
		rel = p.framesWritten
	}
	if rel < 0 {
		rel = 0
	}
	return rel * 1000 / int64(p.sampleRate)
}

// QueueLen reports the number of buffered chunks.
func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops the worker and releases the sink.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.stopping = true
	for _, buf := range p.queue {
		p.pool.Put(buf)
	}
	p.queue = nil
	done := p.workerDone
	p.cond.Broadcast()
	p.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(joinTimeout):
		}
	}
	return p.sink.Close()
}

// run is the playback worker. It prebuffers at utterance start, writes
// frame-aligned chunks, and handles end-of-stream drain.
func (p *Player) run(done chan struct{}) {
	defer close(done)
	for {
		chunk, flush, ok := p.next()
		if !ok {
			return
		}
		if flush {
			p.finishUtterance()
			continue
		}
		p.writeAligned(chunk)
		p.pool.Put(chunk)
	}
}

// next blocks until a chunk is ready, the stream ends (flush=true), or
// the worker must exit (ok=false). It enforces the prebuffer threshold
// before the sink is live.
func (p *Player) next() (chunk []byte, flush bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.stopping || p.closed {
			return nil, false, false
		}
		if len(p.queue) > 0 {
			if !p.sinkLive && len(p.queue) < prebufferChunks && !p.endOfAudio {
				p.cond.Wait()
				continue
			}
			chunk = p.queue[0]
			p.queue = p.queue[1:]
			return chunk, false, true
		}
		if p.endOfAudio && (p.sinkLive || len(p.carry) > 0) {
			p.endOfAudio = false
			return nil, true, true
		}
		p.cond.Wait()
	}
}

// writeAligned prepends the carry, writes as many whole frames as the
// combined buffer holds, and carries the remainder.
func (p *Player) writeAligned(chunk []byte) {
	p.mu.Lock()
	combined := chunk
	if len(p.carry) > 0 {
		combined = append(p.carry, chunk...)
		p.carry = nil
	}
	n := len(combined) / p.frameBytes * p.frameBytes
	if n < len(combined) {
		p.carry = append([]byte(nil), combined[n:]...)
	}
	if n == 0 {
		p.mu.Unlock()
		return
	}
	firstWrite := !p.sinkLive
	p.mu.Unlock()

	if firstWrite {
		if err := p.sink.Start(); err != nil {
			log.Error("start sink", "error", err)
			return
		}
	}
	if _, err := p.sink.Write(combined[:n]); err != nil {
		log.Error("write to sink", "error", err)
		return
	}

	p.mu.Lock()
	p.framesWritten += int64(n / 2)
	if firstWrite {
		p.sinkLive = true
	}
	cb := p.OnPlaybackStarted
	p.mu.Unlock()

	if firstWrite && cb != nil {
		cb()
	}
}

// flushCarry writes the sub-frame remainder left over at end of stream,
// so the tail of an utterance is not dropped. It may be the only write
// of a very short utterance, in which case it also starts the sink.
func (p *Player) flushCarry() {
	p.mu.Lock()
	if len(p.carry) == 0 {
		p.mu.Unlock()
		return
	}
	tail := p.carry
	p.carry = nil
	firstWrite := !p.sinkLive
	p.mu.Unlock()

	if firstWrite {
		if err := p.sink.Start(); err != nil {
			log.Error("start sink", "error", err)
			return
		}
	}
	if _, err := p.sink.Write(tail); err != nil {
		log.Error("write carry to sink", "error", err)
		return
	}

	p.mu.Lock()
	p.framesWritten += int64(len(tail) / 2)
	if firstWrite {
		p.sinkLive = true
	}
	cb := p.OnPlaybackStarted
	p.mu.Unlock()
	if firstWrite && cb != nil {
		cb()
	}
}

// finishUtterance flushes the carry, waits for the hardware to render
// everything written, bounded by drainTimeout, then ends the utterance.
func (p *Player) finishUtterance() {
	p.flushCarry()

	p.mu.Lock()
	target := p.baseline + p.framesWritten
	p.mu.Unlock()

	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		if p.sink.HeadPosition() >= target {
			break
		}
		time.Sleep(10 * time.Millisecond)

		p.mu.Lock()
		interrupted := p.stopping || p.closed
		p.mu.Unlock()
		if interrupted {
			return
		}
	}

	if err := p.sink.Stop(); err != nil {
		log.Debug("stop sink at end of utterance", "error", err)
	}

	p.mu.Lock()
	p.sinkLive = false
	cb := p.OnPlaybackEnded
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}
