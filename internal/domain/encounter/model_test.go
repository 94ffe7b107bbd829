package encounter

import "testing"

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{StatusRegistered, StatusLabOrdered, true},
		{StatusRegistered, StatusCancelled, true},
		{StatusLabOrdered, StatusSpecimenCollected, true},
		{StatusSpecimenCollected, StatusSpecimenReceived, true},
		{StatusSpecimenCollected, StatusResulted, true},
		{StatusSpecimenReceived, StatusResulted, true},
		{StatusResulted, StatusVerified, true},
		{StatusPartialResulted, StatusCancelled, true},

		{StatusRegistered, StatusSpecimenCollected, false},
		{StatusLabOrdered, StatusResulted, false},
		{StatusResulted, StatusPartialResulted, false},
		{StatusVerified, StatusCancelled, false},
		{StatusCancelled, StatusRegistered, false},
	}
	for _, tc := range cases {
		if got := Transitions.Can(tc.from, tc.to); got != tc.ok {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestSpecimenReady(t *testing.T) {
	ready := []string{StatusSpecimenCollected, StatusSpecimenReceived, StatusResulted, StatusPartialResulted, StatusVerified}
	for _, s := range ready {
		if !SpecimenReady(s) {
			t.Errorf("expected %s to be specimen-ready", s)
		}
	}
	for _, s := range []string{StatusRegistered, StatusLabOrdered, StatusCancelled} {
		if SpecimenReady(s) {
			t.Errorf("expected %s not to be specimen-ready", s)
		}
	}
}
