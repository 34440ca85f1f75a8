package domain

import "testing"

func TestParseSymbol(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"aapl", "AAPL", false},
		{" MSFT ", "MSFT", false},
		{"BRK.B", "BRK.B", false},
		{"RDS-A", "RDS-A", false},
		{"", "", true},
		{"123", "", true},
		{"toolongsymbolname", "", true},
	}

	for _, c := range cases {
		got, err := ParseSymbol(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseSymbol(%q) expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSymbol(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSymbol(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRunStateTerminal(t *testing.T) {
	if RunRunning.Terminal() {
		t.Error("running should not be terminal")
	}
	if RunIdle.Terminal() {
		t.Error("idle should not be terminal")
	}
	for _, s := range []RunState{RunCompleted, RunCancelled, RunFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
