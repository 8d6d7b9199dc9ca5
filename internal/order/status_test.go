package order

import "testing"

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusExecuted, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusExecuted}:   true,
		{StatusPending, StatusCancelled}:  true,
		{StatusExecuted, StatusCompleted}: true,
		{StatusExecuted, StatusCancelled}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusExecuted.Terminal() {
		t.Error("pending/executed should not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Error("completed/cancelled should be terminal")
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusExecuted, StatusCompleted, StatusCancelled} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d) error = %v", s, err)
		}
		var back Status
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s) error = %v", text, err)
		}
		if back != s {
			t.Errorf("roundtrip %s = %s", s, back)
		}
	}

	if _, err := Status(0).MarshalText(); err == nil {
		t.Error("zero status should not marshal")
	}
	if _, err := ParseStatus("expired"); err == nil {
		t.Error("unknown status should fail to parse")
	}
}

func TestSideOther(t *testing.T) {
	if got := SideSource.Other(); got != SideDestination {
		t.Errorf("SideSource.Other() = %s", got)
	}
	if got := SideDestination.Other(); got != SideSource {
		t.Errorf("SideDestination.Other() = %s", got)
	}
}
