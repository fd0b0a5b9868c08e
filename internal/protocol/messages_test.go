package protocol

import (
	"errors"
	"testing"
)

func TestParseServerMessageAudio(t *testing.T) {
	raw := []byte(`{"type":"audio","seq":3,"pcm16_base64":"AQID","sample_rate":24000}`)
	msg, err := ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}

	audio, ok := msg.(Audio)
	if !ok {
		t.Fatalf("message type = %T, want Audio", msg)
	}
	if audio.Seq != 3 || audio.SampleRate != 24000 || audio.PCM16Base64 != "AQID" {
		t.Fatalf("unexpected audio frame: %+v", audio)
	}
}

func TestParseServerMessageAction(t *testing.T) {
	raw := []byte(`{"type":"action","id":"a1","action":"update","search":"milk","priority":"high"}`)
	msg, err := ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}

	action, ok := msg.(Action)
	if !ok {
		t.Fatalf("message type = %T, want Action", msg)
	}
	if action.ID != "a1" || action.Name != "update" || action.Search != "milk" {
		t.Fatalf("unexpected action frame: %+v", action)
	}
	if action.Priority != "high" {
		t.Fatalf("Priority = %q, want %q", action.Priority, "high")
	}
}

func TestParseServerMessageInterrupted(t *testing.T) {
	msg, err := ParseServerMessage([]byte(`{"type":"interrupted"}`))
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}
	if _, ok := msg.(Interrupted); !ok {
		t.Fatalf("message type = %T, want Interrupted", msg)
	}
}

func TestParseServerMessageIgnoresUnknownType(t *testing.T) {
	_, err := ParseServerMessage([]byte(`{"type":"telemetry_v2"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseServerMessageRejectsInvalidFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"audio without payload", `{"type":"audio","pcm16_base64":""}`},
		{"action without name", `{"type":"action","search":"milk"}`},
		{"broken envelope", `{"type":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseServerMessage([]byte(tc.raw)); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func BenchmarkParseServerMessageAudio(b *testing.B) {
	raw := []byte(`{"type":"audio","seq":7,"pcm16_base64":"AQIDBAUGBwgJCgsMDQ4P","sample_rate":24000}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseServerMessage(raw)
		if err != nil {
			b.Fatalf("ParseServerMessage() error = %v", err)
		}
		if _, ok := msg.(Audio); !ok {
			b.Fatalf("message type = %T, want Audio", msg)
		}
	}
}
