package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/entities"
	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/domain/repositories"
)

// StreamHooks are callbacks fired while a turn's reply streams in.
type StreamHooks struct {
	// OnFirstChunk fires once, when the first reply text arrives.
	OnFirstChunk func(turn *entities.ConversationTurn)
	// OnChunk fires for every appended reply chunk.
	OnChunk func(turn *entities.ConversationTurn, chunk string)
	// OnComplete fires after the turn finalizes as complete.
	OnComplete func(turn *entities.ConversationTurn)
	// OnError fires after the turn finalizes as errored.
	OnError func(turn *entities.ConversationTurn, err error)
}

// ResponseConsumer drives one turn at a time: it opens the streaming
// reply, appends chunks to the turn, feeds text to the speech pipeline
// and falls back to a non-streaming request when the stream breaks.
type ResponseConsumer struct {
	source repositories.ResponseSource
	speech *SpeechPipeline
	guard  *DispatchGuard
	hooks  StreamHooks

	handsFreeActive func() bool

	cfg    Config
	logger *zap.Logger
}

func NewResponseConsumer(
	source repositories.ResponseSource,
	speech *SpeechPipeline,
	guard *DispatchGuard,
	handsFreeActive func() bool,
	hooks StreamHooks,
	cfg Config,
	logger *zap.Logger,
) *ResponseConsumer {
	return &ResponseConsumer{
		source:          source,
		speech:          speech,
		guard:           guard,
		handsFreeActive: handsFreeActive,
		hooks:           hooks,
		cfg:             cfg.withDefaults(),
		logger:          logger,
	}
}

// Run processes the given turn to a terminal status. It blocks until
// the turn completes, errors out or ctx is cancelled, and is meant to
// run on its own goroutine.
func (r *ResponseConsumer) Run(ctx context.Context, turn *entities.ConversationTurn) {
	chunks, errs, err := r.source.OpenStream(ctx, turn.InputText)
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidRequest) {
			r.fail(turn, err)
			return
		}
		r.logger.Warn("stream open failed, falling back",
			zap.String("turn_id", turn.ID), zap.Error(err))
		r.fallback(ctx, turn)
		return
	}
	r.consume(ctx, turn, chunks, errs)
}

func (r *ResponseConsumer) consume(
	ctx context.Context,
	turn *entities.ConversationTurn,
	chunks <-chan string,
	errs <-chan error,
) {
	firstChunk := time.NewTimer(r.cfg.FirstChunkTimeout)
	defer firstChunk.Stop()
	overall := time.NewTimer(r.cfg.TurnTimeout)
	defer overall.Stop()

	sawChunk := false
	for {
		select {
		case <-ctx.Done():
			r.fail(turn, ctx.Err())
			return

		case <-firstChunk.C:
			if sawChunk {
				continue
			}
			r.logger.Warn("no reply within first-chunk timeout, falling back",
				zap.String("turn_id", turn.ID))
			r.fallback(ctx, turn)
			return

		case <-overall.C:
			r.logger.Warn("turn exceeded overall timeout, falling back",
				zap.String("turn_id", turn.ID))
			r.fallback(ctx, turn)
			return

		case err := <-errs:
			if err == nil {
				continue
			}
			if errors.Is(err, repositories.ErrInvalidRequest) {
				r.fail(turn, err)
				return
			}
			r.logger.Warn("reply stream broke, falling back",
				zap.String("turn_id", turn.ID), zap.Error(err))
			r.fallback(ctx, turn)
			return

		case chunk, ok := <-chunks:
			if !ok {
				// the source may close chunks right after sending on
				// errs; a pending error means the stream broke, not
				// that the reply is complete
				select {
				case err := <-errs:
					if err != nil {
						if errors.Is(err, repositories.ErrInvalidRequest) {
							r.fail(turn, err)
							return
						}
						r.logger.Warn("reply stream broke, falling back",
							zap.String("turn_id", turn.ID), zap.Error(err))
						r.fallback(ctx, turn)
						return
					}
				default:
				}
				r.finish(turn)
				return
			}
			if chunk == "" {
				continue
			}
			if !sawChunk {
				sawChunk = true
				if r.hooks.OnFirstChunk != nil {
					r.hooks.OnFirstChunk(turn)
				}
			}
			r.append(turn, chunk)
		}
	}
}

func (r *ResponseConsumer) append(turn *entities.ConversationTurn, chunk string) {
	if !turn.AppendResponse(chunk) {
		return
	}
	if r.hooks.OnChunk != nil {
		r.hooks.OnChunk(turn, chunk)
	}
	if r.handsFreeActive() && r.speech != nil {
		r.speech.PushStreamText(chunk)
	}
}

// fallback retries the turn with a single non-streaming request. Any
// text the broken stream already delivered is trimmed off the fallback
// reply so nothing is spoken twice.
func (r *ResponseConsumer) fallback(ctx context.Context, turn *entities.ConversationTurn) {
	full, err := r.source.Generate(ctx, turn.InputText)
	if err != nil {
		r.fail(turn, err)
		return
	}

	existing := turn.ResponseText
	delta := full
	if existing != "" && strings.HasPrefix(full, existing) {
		delta = full[len(existing):]
	} else if existing != "" {
		// Fallback reply diverged from the partial stream. Keep what
		// the user already heard and append nothing rather than
		// repeating the answer from the top.
		delta = ""
		r.logger.Warn("fallback reply diverged from streamed prefix",
			zap.String("turn_id", turn.ID))
	}

	if delta != "" {
		if existing == "" && r.hooks.OnFirstChunk != nil {
			r.hooks.OnFirstChunk(turn)
		}
		r.append(turn, delta)
	}
	r.finish(turn)
}

func (r *ResponseConsumer) finish(turn *entities.ConversationTurn) {
	if !turn.Complete() {
		return
	}
	r.guard.Clear()
	if r.handsFreeActive() && r.speech != nil {
		r.speech.SpeakRemainder()
	}
	r.logger.Info("turn complete",
		zap.String("turn_id", turn.ID),
		zap.Int("reply_chars", len(turn.ResponseText)))
	if r.hooks.OnComplete != nil {
		r.hooks.OnComplete(turn)
	}
}

func (r *ResponseConsumer) fail(turn *entities.ConversationTurn, err error) {
	if !turn.Fail(err.Error()) {
		return
	}
	r.guard.Clear()
	r.logger.Error("turn failed",
		zap.String("turn_id", turn.ID), zap.Error(err))
	if r.hooks.OnError != nil {
		r.hooks.OnError(turn, err)
	}
}
