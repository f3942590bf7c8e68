package main

import "testing"

func TestParseArgs(t *testing.T) {
	cmd, err := parseArgs([]string{"up"})
	if err != nil || cmd.name != "up" {
		t.Fatalf("unexpected: %+v %v", cmd, err)
	}

	cmd, err = parseArgs([]string{"down"})
	if err != nil || cmd.steps != 1 {
		t.Fatalf("expected default one step, got %+v %v", cmd, err)
	}

	cmd, err = parseArgs([]string{"down", "3"})
	if err != nil || cmd.steps != 3 {
		t.Fatalf("expected 3 steps, got %+v %v", cmd, err)
	}

	for _, bad := range [][]string{{}, {"sideways"}, {"down", "0"}, {"down", "x"}} {
		if _, err := parseArgs(bad); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}
