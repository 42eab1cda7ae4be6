package tasks

import (
	"fmt"
	"io"
	"log/slog"
)

// Reporter receives the progress lines of a run as they happen.
type Reporter interface {
	Line(line string)
}

// WriterReporter streams progress lines to an interactive caller.
type WriterReporter struct {
	w io.Writer
}

func NewWriterReporter(w io.Writer) *WriterReporter {
	return &WriterReporter{w: w}
}

func (r *WriterReporter) Line(line string) {
	fmt.Fprintln(r.w, line)
}

type nopReporter struct{}

func (nopReporter) Line(string) {}

// feedLines logs every line, keeps it on the feed report and forwards it.
type feedLines struct {
	reporter Reporter
	report   *FeedReport
}

func (l *feedLines) Line(line string) {
	slog.Debug("Pipeline", "feed", l.report.URL, "line", line)
	l.report.Lines = append(l.report.Lines, line)
	l.reporter.Line(line)
}
