package exporter

import "testing"

func TestCheckSequenceInOrder(t *testing.T) {
	s := NewState(Key{}, 1)
	if gap, reordered := s.CheckSequence(100); gap != 0 || reordered {
		t.Fatalf("first observed sequence number must never report a gap")
	}
	if gap, reordered := s.CheckSequence(101); gap != 0 || reordered {
		t.Fatalf("consecutive sequence numbers must not report a gap")
	}
}

func TestCheckSequenceDetectsGap(t *testing.T) {
	s := NewState(Key{}, 1)
	s.CheckSequence(100)
	gap, reordered := s.CheckSequence(105)
	if reordered {
		t.Errorf("a forward jump is a gap, not a reorder")
	}
	if gap != 4 {
		t.Errorf("got gap %d, want 4", gap)
	}
}

func TestCheckSequenceDetectsReorder(t *testing.T) {
	s := NewState(Key{}, 1)
	s.CheckSequence(100)
	gap, reordered := s.CheckSequence(50)
	if gap != 0 {
		t.Errorf("a regression should not also report a gap count")
	}
	if !reordered {
		t.Errorf("a sequence number not greater than the last seen must be reported as reordered")
	}
}

func TestSamplingRatePrecedence(t *testing.T) {
	s := NewState(Key{}, 1)
	if got := s.SamplingRate(); got != 1 {
		t.Fatalf("got default sampling rate %d, want 1", got)
	}

	s.DefaultSamplingRate = 50
	if got := s.SamplingRate(); got != 50 {
		t.Fatalf("got %d, want exporter default 50", got)
	}

	s.Samplers[-1] = &Sampler{ID: -1, Interval: 10}
	if got := s.SamplingRate(); got != 10 {
		t.Fatalf("got %d, want standard sampler rate 10 to override the default", got)
	}

	s.OverwriteSamplingRate = 999
	if got := s.SamplingRate(); got != 999 {
		t.Fatalf("got %d, want operator overwrite 999 to override everything", got)
	}
}

func TestUpsertAndWithdrawTemplate(t *testing.T) {
	s := NewState(Key{}, 1)
	existed := s.UpsertTemplate(256, nil, nil)
	if existed {
		t.Errorf("first announcement of a template id must report existed=false")
	}
	existed = s.UpsertTemplate(256, nil, nil)
	if !existed {
		t.Errorf("re-announcement of a known template id must report existed=true")
	}
	s.WithdrawTemplate(256)
	if _, ok := s.Templates[256]; ok {
		t.Errorf("expected the template to be gone after withdrawal")
	}
}

func TestWithdrawAllClearsBothMaps(t *testing.T) {
	s := NewState(Key{}, 1)
	s.UpsertTemplate(1, nil, nil)
	s.UpsertOptionTemplate(2, nil)
	s.WithdrawAll()
	if len(s.Templates) != 0 || len(s.OptionTemplates) != 0 {
		t.Errorf("expected both maps empty after WithdrawAll")
	}
}

func TestRegistryAssignsStableIncrementingSysIDs(t *testing.T) {
	r := NewRegistry()
	k1 := Key{Domain: 1}
	k2 := Key{Domain: 2}

	s1, existed := r.Get(k1)
	if existed {
		t.Fatalf("first Get for a new key must report existed=false")
	}
	s1Again, existed := r.Get(k1)
	if !existed {
		t.Fatalf("second Get for the same key must report existed=true")
	}
	if s1 != s1Again {
		t.Fatalf("expected the same *State pointer across repeated Gets")
	}

	s2, _ := r.Get(k2)
	if s1.SysID == s2.SysID {
		t.Errorf("two distinct exporters must not share a system id")
	}
	if r.Len() != 2 {
		t.Errorf("got %d tracked exporters, want 2", r.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	k := Key{Domain: 1}
	r.Get(k)
	r.Remove(k)
	if r.Len() != 0 {
		t.Errorf("expected no tracked exporters after Remove")
	}
}
