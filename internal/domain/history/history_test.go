package history

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatUID(t *testing.T) {
	tests := map[int64]string{1: "SR-0000001", 42: "SR-0000042", 12345678: "SR-12345678"}
	for id, want := range tests {
		if got := FormatUID(id); got != want {
			t.Errorf("FormatUID(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestNewCommandLogTruncates(t *testing.T) {
	l, err := NewCommandLog("u1", strings.Repeat("c", 150), strings.Repeat("t", 600), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Command) != MaxCommandLength || len(l.Target) != MaxTargetLength {
		t.Errorf("lengths = %d/%d", len(l.Command), len(l.Target))
	}
	if _, err := NewCommandLog("u1", "", "x", true); !errors.Is(err, ErrMissingFields) {
		t.Errorf("err = %v, want ErrMissingFields", err)
	}
}

func TestNewSearchRecordDefaultsResult(t *testing.T) {
	r, err := NewSearchRecord("u1", "dns", "example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if r.ResultJSON != "{}" {
		t.Errorf("ResultJSON = %q", r.ResultJSON)
	}
	if _, err := NewSearchRecord("u1", "dns", " ", "{}"); !errors.Is(err, ErrMissingFields) {
		t.Errorf("err = %v", err)
	}
}
