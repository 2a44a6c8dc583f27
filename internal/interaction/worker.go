package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/internal/observe"
	"github.com/MrWong99/nara/pkg/audio"
)

// work runs one interaction: answer, ask permission to speak, speak. It never
// touches orchestrator state; everything goes back through o.results.
func (o *Orchestrator) work(ctx context.Context, inter *Interaction) {
	ctx, span := observe.StartSpan(observe.WithInteractionID(ctx, inter.ID), "interaction")
	defer span.End()

	res, fallback, err := o.answer(ctx, inter)
	if err == nil && !o.muted.Load() {
		text := o.cfg.GenericResponse
		if !fallback {
			text = res.Markdown
		}
		granted, ok := o.requestSpeech(inter.ID)
		if !ok || !granted {
			// Superseded while answering; nobody is waiting for this result.
			return
		}
		err = o.speak(ctx, text)
	}
	if err != nil {
		span.RecordError(err)
	}
	o.post(workerMsg{id: inter.ID, done: &workerResult{result: res, fallback: fallback, err: err}})
}

// answer runs the pipeline under the answer timeout. A missing transcript is
// turned into the generic fallback rather than an error.
func (o *Orchestrator) answer(ctx context.Context, inter *Interaction) (*answer.Result, bool, error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.AnswerTimeout)
	defer cancel()

	res, err := o.deps.Answerer.Answer(actx, answer.Request{
		Playback: o.deps.Context.Snapshot(),
		Question: inter.Question,
	})
	switch {
	case errors.Is(err, answer.ErrContentUnavailable):
		slog.Info("interaction: no transcript for allowed chapter, using generic response", "interaction_id", inter.ID)
		return nil, true, nil
	case err != nil:
		return nil, false, err
	}
	return res, false, nil
}

// speak streams text sentence by sentence through TTS into the sink.
func (o *Orchestrator) speak(ctx context.Context, text string) error {
	sentences := SplitSentences(StripMarkdown(text))
	if len(sentences) == 0 {
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.SpeechTimeout)
	defer cancel()

	textCh := make(chan string, len(sentences))
	for _, s := range sentences {
		textCh <- s
	}
	close(textCh)

	pcm, err := o.deps.TTS.SynthesizeStream(sctx, textCh, o.cfg.Voice)
	if err != nil {
		return fmt.Errorf("interaction: synthesize: %w", err)
	}
	if err := o.deps.Sink.Play(sctx, pcm); err != nil {
		go audio.Drain(pcm)
		return fmt.Errorf("interaction: play: %w", err)
	}
	return nil
}

// requestSpeech asks the Run loop whether this interaction may still speak.
// ok is false when the orchestrator has stopped.
func (o *Orchestrator) requestSpeech(id string) (granted, ok bool) {
	reply := make(chan bool, 1)
	if !o.post(workerMsg{id: id, proceed: reply}) {
		return false, false
	}
	select {
	case granted = <-reply:
		return granted, true
	case <-o.done:
		return false, false
	}
}

func (o *Orchestrator) post(msg workerMsg) bool {
	select {
	case o.results <- msg:
		return true
	case <-o.done:
		return false
	}
}
