package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// queueItem is one utterance waiting its turn through the speaker.
// ready is closed exactly once, when prefetch settles the item into
// either the ready or failed state.
type queueItem struct {
	id       string
	text     string
	kind     entities.TTSItemKind
	state    entities.TTSItemState
	audio    []byte
	ready    chan struct{}
	attempts int
}

// SpeechPipeline turns streamed reply text into spoken audio. Text is
// cut into speakable chunks at sentence boundaries, synthesized ahead
// of playback with bounded concurrency, and always played in the order
// it was queued regardless of which synthesis finishes first.
type SpeechPipeline struct {
	synth    repositories.SynthesisProvider
	fallback repositories.SynthesisProvider
	player   repositories.AudioPlayer

	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	pending   string
	queue     []*queueItem
	inFlight  int
	looping   bool
	gen       uint64
	runCtx    context.Context
	runCancel context.CancelFunc
	onDrained func()
}

// NewSpeechPipeline wires a pipeline over the given providers. fallback
// may be nil; when set it is tried after the primary provider exhausts
// its rate-limit retries.
func NewSpeechPipeline(
	synth repositories.SynthesisProvider,
	fallback repositories.SynthesisProvider,
	player repositories.AudioPlayer,
	cfg Config,
	logger *zap.Logger,
) *SpeechPipeline {
	return &SpeechPipeline{
		synth:    synth,
		fallback: fallback,
		player:   player,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// SetDrainedHook registers the callback fired when the queue and the
// pending text buffer are both empty after playback.
func (p *SpeechPipeline) SetDrainedHook(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDrained = fn
}

// Start arms the pipeline under ctx. Synthesis and playback started
// after this call are cancelled when ctx ends or Stop is called.
func (p *SpeechPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runCancel != nil {
		p.runCancel()
	}
	p.runCtx, p.runCancel = context.WithCancel(ctx)
	p.gen++
}

// Stop discards everything queued and cancels in-flight synthesis and
// playback. Safe to call repeatedly.
func (p *SpeechPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.pending = ""
	p.queue = nil
	p.inFlight = 0
	p.looping = false
	if p.runCancel != nil {
		p.runCancel()
		p.runCtx, p.runCancel = nil, nil
	}
}

// Speaking reports whether anything is queued or buffered for speech.
func (p *SpeechPipeline) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) > 0 || p.pending != ""
}

// PushStreamText buffers streamed reply text and queues any complete
// sentences it now holds.
func (p *SpeechPipeline) PushStreamText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending += text
	p.cutChunksLocked()
	p.kickLocked()
}

// PushFullMessage queues a complete utterance as a single item,
// bypassing sentence cutting. Used for replaying a whole reply.
func (p *SpeechPipeline) PushFullMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueueLocked(text, entities.TTSKindFullMessage)
	p.kickLocked()
}

// SpeakRemainder flushes whatever partial sentence is still buffered.
// Called when the reply stream completes.
func (p *SpeechPipeline) SpeakRemainder() {
	p.mu.Lock()
	defer p.mu.Unlock()
	tail := strings.TrimSpace(p.pending)
	p.pending = ""
	if tail != "" {
		p.enqueueLocked(tail, entities.TTSKindFullMessage)
	}
	p.kickLocked()
}

// cutChunksLocked slices complete sentences off the front of the
// pending buffer. A sentence ends at terminal punctuation followed by
// whitespace. Overlong sentences are cut at the last space before the
// chunk limit so the speaker never waits on one giant run-on.
func (p *SpeechPipeline) cutChunksLocked() {
	for {
		cut := -1
		runes := []rune(p.pending)
		for i := 0; i < len(runes)-1; i++ {
			if isSentenceTerminal(runes[i]) && unicode.IsSpace(runes[i+1]) {
				cut = i + 1
				break
			}
		}
		if cut == -1 && len(runes) > p.cfg.ChunkMaxChars {
			for i := p.cfg.ChunkMaxChars; i > 0; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
		}
		if cut == -1 {
			return
		}
		chunk := strings.TrimSpace(string(runes[:cut]))
		p.pending = strings.TrimLeft(string(runes[cut:]), " \t\n\r")
		if chunk != "" {
			p.enqueueLocked(chunk, entities.TTSKindStreamingChunk)
		}
	}
}

func isSentenceTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}

func (p *SpeechPipeline) enqueueLocked(text string, kind entities.TTSItemKind) {
	item := &queueItem{
		id:    uuid.New().String(),
		text:  text,
		kind:  kind,
		state: entities.TTSStateQueued,
		ready: make(chan struct{}),
	}
	p.queue = append(p.queue, item)
}

// kickLocked starts prefetch workers and the play loop as needed.
func (p *SpeechPipeline) kickLocked() {
	if p.runCtx == nil {
		return
	}
	p.prefetchLocked()
	if !p.looping && len(p.queue) > 0 {
		p.looping = true
		go p.playLoop(p.runCtx, p.gen)
	}
}

// prefetchLocked launches synthesis for queued items up to the
// concurrency cap, in queue order.
func (p *SpeechPipeline) prefetchLocked() {
	for _, item := range p.queue {
		if p.inFlight >= p.cfg.PrefetchConcurrency {
			return
		}
		if item.state != entities.TTSStateQueued {
			continue
		}
		item.state = entities.TTSStatePrefetching
		p.inFlight++
		go p.prefetchOne(p.runCtx, p.gen, item)
	}
}

func (p *SpeechPipeline) prefetchOne(ctx context.Context, gen uint64, item *queueItem) {
	audio, err := p.synthWithRetry(ctx, item)

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		close(item.ready)
		return
	}
	p.inFlight--
	if err != nil {
		item.state = entities.TTSStateFailed
		p.logger.Warn("synthesis failed",
			zap.String("item_id", item.id), zap.Error(err))
	} else {
		item.state = entities.TTSStateReady
		item.audio = audio
	}
	p.prefetchLocked()
	p.mu.Unlock()
	close(item.ready)
}

// synthWithRetry retries rate-limited synthesis with doubling delays,
// then tries the fallback provider if one is configured. Any other
// error fails immediately to the fallback.
func (p *SpeechPipeline) synthWithRetry(ctx context.Context, item *queueItem) ([]byte, error) {
	var err error
	delay := p.cfg.SynthRetryBase
	for attempt := 1; attempt <= p.cfg.SynthMaxAttempts; attempt++ {
		var audio []byte
		item.attempts = attempt
		audio, err = p.synth.Synthesize(ctx, item.text)
		if err == nil {
			return audio, nil
		}
		if !errors.Is(err, repositories.ErrRateLimited) {
			break
		}
		if attempt == p.cfg.SynthMaxAttempts {
			break
		}
		p.logger.Warn("synthesis rate limited, backing off",
			zap.String("item_id", item.id),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	if p.fallback != nil {
		audio, ferr := p.fallback.Synthesize(ctx, item.text)
		if ferr == nil {
			p.logger.Info("fallback synthesis used", zap.String("item_id", item.id))
			return audio, nil
		}
		p.logger.Warn("fallback synthesis failed",
			zap.String("item_id", item.id), zap.Error(ferr))
	}
	return nil, err
}

// playLoop plays queue items strictly head-first. A failed head gets
// one more synchronous pass through retry and fallback; if that also
// fails the item is skipped so one bad chunk cannot silence the rest
// of the reply.
func (p *SpeechPipeline) playLoop(ctx context.Context, gen uint64) {
	for {
		p.mu.Lock()
		if gen != p.gen {
			p.mu.Unlock()
			return
		}
		if len(p.queue) == 0 {
			p.looping = false
			drained := p.pending == ""
			cb := p.onDrained
			p.mu.Unlock()
			if drained && cb != nil {
				cb()
			}
			return
		}
		head := p.queue[0]
		p.prefetchLocked()
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-head.ready:
		}

		p.mu.Lock()
		if gen != p.gen {
			p.mu.Unlock()
			return
		}
		state := head.state
		p.mu.Unlock()

		if state == entities.TTSStateFailed {
			audio, err := p.synthWithRetry(ctx, head)
			if err != nil {
				p.logger.Warn("retry synthesis failed, skipping item",
					zap.String("item_id", head.id), zap.Error(err))
				p.pop(gen, head)
				continue
			}
			head.audio = audio
		}

		p.setState(gen, head, entities.TTSStatePlaying)
		if err := p.player.Play(ctx, head.audio); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("playback failed, skipping item",
				zap.String("item_id", head.id), zap.Error(err))
		}
		p.setState(gen, head, entities.TTSStateDone)
		p.pop(gen, head)
	}
}

func (p *SpeechPipeline) setState(gen uint64, item *queueItem, s entities.TTSItemState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	item.state = s
}

func (p *SpeechPipeline) pop(gen uint64, item *queueItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	if len(p.queue) > 0 && p.queue[0] == item {
		p.queue = p.queue[1:]
	}
}
