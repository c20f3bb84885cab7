package utils

import (
	"errors"
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	got, err := ParseDay(" 2030-01-07 ")
	if err != nil || !got.Equal(time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)) || got.Location() != time.UTC {
		t.Fatalf("ParseDay = %v, %v", got, err)
	}
	for _, bad := range []string{"", "2030-13-01", "07.01.2030", "2030-01-07T10:00:00Z"} {
		if _, err := ParseDay(bad); !errors.Is(err, ErrBadTime) {
			t.Fatalf("ParseDay(%q) err = %v", bad, err)
		}
	}
}

func TestParseInstant(t *testing.T) {
	cases := map[string]time.Time{
		"2030-01-07T13:15:00Z":      time.Date(2030, 1, 7, 13, 15, 0, 0, time.UTC),
		"2030-01-07T14:15:00+01:00": time.Date(2030, 1, 7, 13, 15, 0, 0, time.UTC),
		"2030-01-07":                time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseInstant(in)
		if err != nil || !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("ParseInstant(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseInstant("tomorrow"); !errors.Is(err, ErrBadTime) {
		t.Fatalf("expected ErrBadTime")
	}
}
