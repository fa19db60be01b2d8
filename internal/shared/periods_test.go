package shared

import (
	"errors"
	"testing"
)

func TestValidatePeriodTransition(t *testing.T) {
	cases := []struct {
		from, to   string
		privileged bool
		ok         bool
	}{
		{PeriodStatusOpen, PeriodStatusClosed, false, true},
		{PeriodStatusClosed, PeriodStatusClosed, false, true},
		{PeriodStatusClosed, PeriodStatusOpen, false, false},
		{PeriodStatusClosed, PeriodStatusOpen, true, true},
		{PeriodStatusOpen, "LOCKED", true, false},
	}
	for _, tc := range cases {
		err := ValidatePeriodTransition(tc.from, tc.to, tc.privileged)
		if tc.ok && err != nil {
			t.Errorf("%s->%s: unexpected %v", tc.from, tc.to, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidPeriodTransition) {
			t.Errorf("%s->%s: expected invalid transition, got %v", tc.from, tc.to, err)
		}
	}
}
