package room

import (
	"errors"
	"testing"
)

func TestMemoryRoomParticipantLifecycle(t *testing.T) {
	reg := NewRegistry()
	r := reg.GetOrCreate("room1")

	var joined, left []string
	r.SetEvents(Events{
		OnJoined: func(p Participant) { joined = append(joined, p.ID) },
		OnLeft:   func(id string) { left = append(left, id) },
	})

	r.AddParticipant(Participant{ID: "alice", Metadata: `{"sourceLanguage":"ko"}`})
	r.AddParticipant(Participant{ID: "alice", Metadata: `{"sourceLanguage":"en"}`})
	r.RemoveParticipant("alice")
	r.RemoveParticipant("alice")

	if len(joined) != 1 || joined[0] != "alice" {
		t.Errorf("expected one join for alice, got %v", joined)
	}
	if len(left) != 1 || left[0] != "alice" {
		t.Errorf("expected one leave for alice, got %v", left)
	}
}

func TestMemoryRoomAudioFanout(t *testing.T) {
	reg := NewRegistry()
	r := reg.GetOrCreate("room1")
	r.AddParticipant(Participant{ID: "alice"})

	var got [][]float32
	unsub, err := r.SubscribeAudio("alice", func(samples []float32, rate int) {
		got = append(got, samples)
		if rate != 48000 {
			t.Errorf("expected rate 48000, got %d", rate)
		}
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	r.PushAudio("alice", []float32{0.1, 0.2}, 48000)
	unsub()
	r.PushAudio("alice", []float32{0.3}, 48000)

	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
}

func TestMemoryRoomSubscribeUnknownParticipant(t *testing.T) {
	r := NewRegistry().GetOrCreate("room1")
	if _, err := r.SubscribeAudio("ghost", func([]float32, int) {}); !errors.Is(err, ErrNoSuchParticipant) {
		t.Errorf("expected ErrNoSuchParticipant, got %v", err)
	}
}

func TestRegistryReusesUntilClose(t *testing.T) {
	reg := NewRegistry()
	a := reg.GetOrCreate("room1")
	if b := reg.GetOrCreate("room1"); b != a {
		t.Error("expected the same room instance")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("double close failed: %v", err)
	}

	if _, ok := reg.Get("room1"); ok {
		t.Error("expected room dropped from registry after close")
	}
	if c := reg.GetOrCreate("room1"); c == a {
		t.Error("expected a fresh room after close")
	}

	a.AddParticipant(Participant{ID: "alice"})
	if _, err := a.SubscribeAudio("alice", func([]float32, int) {}); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("expected ErrRoomClosed, got %v", err)
	}
}
