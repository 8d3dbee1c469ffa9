package protocol

import (
	"encoding/base64"
	"fmt"
	"testing"
)

func TestDecodeSessionCreated(t *testing.T) {
	d := NewDecoder(DialectOpenAI)
	evs := d.Decode([]byte(`{"type":"session.created","session":{"id":"sess_1","model":"gpt-realtime","voice":"marin"}}`))
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	sc, ok := evs[0].(SessionCreated)
	if !ok {
		t.Fatalf("got %T, want SessionCreated", evs[0])
	}
	if sc.SessionID != "sess_1" || sc.Model != "gpt-realtime" || sc.Voice != "marin" {
		t.Errorf("unexpected fields: %+v", sc)
	}
}

func TestDecodeAudioDeltaBothGenerations(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	b64 := base64.StdEncoding.EncodeToString(pcm)

	for _, typ := range []string{"response.audio.delta", "response.output_audio.delta"} {
		t.Run(typ, func(t *testing.T) {
			d := NewDecoder(DialectOpenAI)
			frame := fmt.Sprintf(`{"type":%q,"response_id":"resp_1","delta":%q}`, typ, b64)
			evs := d.Decode([]byte(frame))
			if len(evs) != 2 {
				t.Fatalf("got %d events, want boundary + delta", len(evs))
			}
			if b, ok := evs[0].(ResponseBoundary); !ok || b.ResponseID != "resp_1" {
				t.Errorf("first event = %#v, want ResponseBoundary resp_1", evs[0])
			}
			ad, ok := evs[1].(AudioDelta)
			if !ok {
				t.Fatalf("second event = %T, want AudioDelta", evs[1])
			}
			if string(ad.PCM) != string(pcm) {
				t.Errorf("PCM = %v, want %v", ad.PCM, pcm)
			}
		})
	}
}

func TestBoundaryEmittedOncePerResponse(t *testing.T) {
	d := NewDecoder(DialectOpenAI)
	b64 := base64.StdEncoding.EncodeToString([]byte{0, 0})

	first := d.Decode([]byte(fmt.Sprintf(`{"type":"response.audio.delta","response_id":"resp_1","delta":%q}`, b64)))
	if len(first) != 2 {
		t.Fatalf("first frame: got %d events, want 2", len(first))
	}
	second := d.Decode([]byte(fmt.Sprintf(`{"type":"response.audio.delta","response_id":"resp_1","delta":%q}`, b64)))
	if len(second) != 1 {
		t.Fatalf("second frame: got %d events, want 1 (no repeated boundary)", len(second))
	}
	third := d.Decode([]byte(fmt.Sprintf(`{"type":"response.audio.delta","response_id":"resp_2","delta":%q}`, b64)))
	if len(third) != 2 {
		t.Fatalf("new id: got %d events, want boundary + delta", len(third))
	}
	if b := third[0].(ResponseBoundary); b.ResponseID != "resp_2" {
		t.Errorf("boundary id = %q, want resp_2", b.ResponseID)
	}
}

func TestInvalidBase64DropsChunkKeepsBoundary(t *testing.T) {
	d := NewDecoder(DialectOpenAI)
	evs := d.Decode([]byte(`{"type":"response.audio.delta","response_id":"resp_9","delta":"!!!not base64!!!"}`))
	if len(evs) != 1 {
		t.Fatalf("got %d events, want boundary only", len(evs))
	}
	if _, ok := evs[0].(ResponseBoundary); !ok {
		t.Errorf("got %T, want ResponseBoundary", evs[0])
	}
}

func TestDecodeResponseDoneWithFunctionCall(t *testing.T) {
	d := NewDecoder(DialectOpenAI)
	frame := `{"type":"response.done","response":{"id":"resp_7","status":"completed","output":[
		{"id":"item_1","type":"function_call","name":"get_weather","call_id":"call_1","arguments":"{\"city\":\"Paris\"}"},
		{"id":"item_2","type":"message","role":"assistant","content":[{"type":"audio","text":""}]}
	]}}`
	evs := d.Decode([]byte(frame))
	if len(evs) != 2 {
		t.Fatalf("got %d events, want boundary + done", len(evs))
	}
	rd, ok := evs[1].(ResponseDone)
	if !ok {
		t.Fatalf("got %T, want ResponseDone", evs[1])
	}
	if len(rd.Response.Output) != 2 {
		t.Fatalf("output items = %d, want 2", len(rd.Response.Output))
	}
	fc := rd.Response.Output[0]
	if fc.Type != "function_call" || fc.Name != "get_weather" || fc.CallID != "call_1" {
		t.Errorf("unexpected function call item: %+v", fc)
	}
}

func TestDecodeUserEvents(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Event
	}{
		{
			"speech started",
			`{"type":"input_audio_buffer.speech_started","item_id":"item_u1"}`,
			UserSpeechStarted{ItemID: "item_u1"},
		},
		{
			"speech stopped",
			`{"type":"input_audio_buffer.speech_stopped","item_id":"item_u1"}`,
			UserSpeechStopped{ItemID: "item_u1"},
		},
		{
			"committed",
			`{"type":"input_audio_buffer.committed","item_id":"item_u1"}`,
			AudioBufferCommitted{ItemID: "item_u1"},
		},
		{
			"transcript completed",
			`{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_u1","transcript":"hello"}`,
			UserTranscriptCompleted{ItemID: "item_u1", Transcript: "hello"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(DialectOpenAI)
			evs := d.Decode([]byte(tt.frame))
			if len(evs) != 1 {
				t.Fatalf("got %d events, want 1", len(evs))
			}
			if evs[0] != tt.want {
				t.Errorf("got %#v, want %#v", evs[0], tt.want)
			}
		})
	}
}

func TestUserItemCreatedFiltersNonUserRoles(t *testing.T) {
	d := NewDecoder(DialectOpenAI)
	if evs := d.Decode([]byte(`{"type":"conversation.item.created","item":{"id":"item_a","role":"assistant"}}`)); len(evs) != 0 {
		t.Errorf("assistant item: got %d events, want 0", len(evs))
	}
	evs := d.Decode([]byte(`{"type":"conversation.item.created","item":{"id":"item_u","role":"user"}}`))
	if len(evs) != 1 {
		t.Fatalf("user item: got %d events, want 1", len(evs))
	}
	if uc := evs[0].(UserItemCreated); uc.ItemID != "item_u" {
		t.Errorf("item id = %q, want item_u", uc.ItemID)
	}
}

func TestDecodeServerError(t *testing.T) {
	d := NewDecoder(DialectOpenAI)
	evs := d.Decode([]byte(`{"type":"error","error":{"type":"invalid_request_error","code":"response_cancel_not_active","message":"no active response"}}`))
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	se := evs[0].(ServerError)
	if se.Err.Code != "response_cancel_not_active" {
		t.Errorf("code = %q", se.Err.Code)
	}
}

func TestBookkeepingEventsYieldNothing(t *testing.T) {
	silent := []string{
		"conversation.item.truncated",
		"response.output_item.done",
		"response.content_part.added",
		"response.content_part.done",
		"response.function_call_arguments.delta",
		"response.function_call_arguments.done",
		"rate_limits.updated",
	}
	d := NewDecoder(DialectOpenAI)
	for _, typ := range silent {
		if evs := d.Decode([]byte(fmt.Sprintf(`{"type":%q}`, typ))); len(evs) != 0 {
			t.Errorf("%s: got %d events, want 0", typ, len(evs))
		}
	}
}

func TestUnknownTypeAndParseError(t *testing.T) {
	d := NewDecoder(DialectOpenAI)
	evs := d.Decode([]byte(`{"type":"future.event"}`))
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if u := evs[0].(Unknown); u.Type != "future.event" {
		t.Errorf("type = %q", u.Type)
	}
	evs = d.Decode([]byte(`{not json`))
	if u := evs[0].(Unknown); u.Type != "parse_error" {
		t.Errorf("type = %q, want parse_error", u.Type)
	}
}
