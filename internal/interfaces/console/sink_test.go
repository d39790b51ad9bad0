package console

import (
	"bytes"
	"testing"
	"time"
)

func TestSinkWrites(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkTo(&buf)

	_ = s.WriteLive("\rlive")
	_ = s.WriteSnapshot(time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local), "snap")
	_ = s.NewLine()

	want := "\rlive\n2024-01-02 03:04:05 snap\n\n\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
