package datasource

import (
	"testing"
)

func TestLogProgressListener(t *testing.T) {
	l := NewLogProgressListener("districts")
	l.Begin(100)
	for done := 0; done <= 100; done += 10 {
		l.Progress(done)
	}
	l.End()
}

func TestLogProgressListener_UnknownTotal(t *testing.T) {
	l := NewLogProgressListener("districts")
	l.Begin(-1)
	l.Progress(5000)
	l.End()
}

func TestLogProgressListener_EndWithoutBegin(t *testing.T) {
	NewLogProgressListener("districts").End()
}
