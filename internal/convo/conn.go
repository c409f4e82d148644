package convo

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"github.com/ariadne-ai/aria/internal/live"
	"github.com/ariadne-ai/aria/internal/protocol"
)

// RunConnection drives one websocket connection against the orchestrator:
// inbound protocol messages become turn operations, orchestrator events
// stream back as outbound protocol messages. It returns when the inbound
// channel closes or the context ends. One connection at a time; a new
// connection takes over the event callbacks.
func (o *Orchestrator) RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error {
	o.OnTranscript(func(text string) {
		o.send(outbound, protocol.TranscriptPartial{
			Type: protocol.TypeTranscriptPartial,
			Text: text,
			TSMs: time.Now().UnixMilli(),
		})
	})
	o.OnAssistantText(func(turnID, delta string) {
		o.send(outbound, protocol.AssistantTextDelta{
			Type:      protocol.TypeAssistantTextDelta,
			TurnID:    turnID,
			TextDelta: delta,
		})
	})
	audioSeq := 0
	o.OnAssistantAudio(func(pcm []byte) {
		audioSeq++
		o.send(outbound, protocol.AssistantAudioChunk{
			Type:        protocol.TypeAssistantAudio,
			Seq:         audioSeq,
			Format:      "pcm16",
			AudioBase64: base64.StdEncoding.EncodeToString(pcm),
		})
	})
	o.OnTurnEnd(func(turnID, reason string) {
		o.send(outbound, protocol.AssistantTurnEnd{
			Type:   protocol.TypeAssistantTurnEnd,
			TurnID: turnID,
			Reason: reason,
		})
	})
	o.OnToolCall(func(name string, args map[string]string) {
		o.send(outbound, protocol.ToolCallEvent{
			Type: protocol.TypeToolCallEvent,
			Name: name,
			Args: args,
		})
	})
	o.OnError(func(err *live.SessionError) {
		o.send(outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			Code:      err.Code,
			Source:    "live_session",
			Retryable: err.Retryable,
			Detail:    err.Detail,
		})
	})
	o.OnStateChange(func(s live.State) {
		o.send(outbound, protocol.StateEvent{
			Type:  protocol.TypeStateEvent,
			State: string(s),
		})
	})
	defer o.clearCallbacks()

	o.send(outbound, protocol.StateEvent{
		Type:  protocol.TypeStateEvent,
		State: string(o.live.State()),
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			o.dispatch(ctx, msg, outbound)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, msg any, outbound chan<- any) {
	switch m := msg.(type) {
	case protocol.ClientText:
		if err := o.ProcessText(ctx, m.Text); err != nil {
			o.sendError(outbound, "send_text_failed", err)
		}
	case protocol.ClientAudioChunk:
		pcm, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
		if err != nil {
			o.sendError(outbound, "invalid_audio_payload", err)
			return
		}
		if err := o.ProcessVoice(pcm); err != nil {
			o.sendError(outbound, "stream_audio_failed", err)
		}
	case protocol.ClientControl:
		switch m.Action {
		case "end_audio":
			if err := o.EndVoiceInput(); err != nil {
				o.sendError(outbound, "end_audio_failed", err)
			}
		case "disconnect":
			o.Disconnect()
		default:
			log.Printf("convo: unknown control action %q", m.Action)
		}
	}
}

// send enqueues without blocking: the websocket writer is the single
// consumer, and a saturated queue means a stalled client.
func (o *Orchestrator) send(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		log.Printf("convo: outbound queue full, dropping %T", msg)
	}
}

func (o *Orchestrator) sendError(outbound chan<- any, code string, err error) {
	o.send(outbound, protocol.ErrorEvent{
		Type:   protocol.TypeErrorEvent,
		Code:   code,
		Source: "orchestrator",
		Detail: err.Error(),
	})
}

func (o *Orchestrator) clearCallbacks() {
	o.cbMu.Lock()
	o.onText = nil
	o.onAudio = nil
	o.onTranscript = nil
	o.onTurnEnd = nil
	o.onToolCall = nil
	o.onError = nil
	o.onState = nil
	o.cbMu.Unlock()
}
