package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteAtEachSeverityReachesOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Trace, &buf)

	for _, sev := range []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"} {
		msg := "hello there at " + sev
		log.Write(sev, msg)
		if !strings.Contains(buf.String(), msg) {
			t.Fatalf("expected output to contain %s message, got %q", sev, buf.String())
		}
	}
}

func TestLevelFilteringDropsBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	log := New(Warn, &buf)

	log.Write("DEBUG", "should not appear")
	if strings.Contains(buf.String(), "should not appear") {
		t.Fatalf("expected DEBUG message to be filtered out, got %q", buf.String())
	}

	log.Write("ERROR", "should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected ERROR message to pass the WARN floor, got %q", buf.String())
	}
}

func TestMultiSinkFanOut(t *testing.T) {
	var a, b bytes.Buffer
	log := New(Info, &a, &b)
	log.Write("INFO", "fan out")

	if !strings.Contains(a.String(), "fan out") || !strings.Contains(b.String(), "fan out") {
		t.Fatalf("expected both sinks to receive the message, got a=%q b=%q", a.String(), b.String())
	}
}

func TestDefaultLoggerLazyInit(t *testing.T) {
	if L() == nil {
		t.Fatal("L() should never return nil")
	}
}
