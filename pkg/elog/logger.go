package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// Logger is an interface that has the ability to hide debug/info output.
type Logger interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Printf(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	IsInfoEnabled() bool
	IsDebugEnabled() bool
}

// Progress is an interface to display progress bars for long-running scans,
// such as the main-area walk.
type Progress interface {
	Finish(success bool)
	Increment(n int64)
}

// ProgressReporter is an interface that contains the ability to create a Progress bar object.
type ProgressReporter interface {
	NewProgress(label string, total int64) Progress
}

// Reporter prints the per-check result lines an fsck pass produces, e.g.
// "[FSCK] Check valid block map ... [Ok..]".
type Reporter interface {
	Section(title string)
	Check(name string, ok bool)
}

// View is an interface that contains a logger, a progress reporter, and a
// check-result reporter. It is what pkg/fsck is handed to talk to the
// outside world.
type View interface {
	Logger
	ProgressReporter
	Reporter
}

// CLI is a generic object setup for logging to terminal outputs.
type CLI struct {
	DisableColors      bool
	DisableTTY         bool
	IsDebug            bool
	IsVerbose          bool
	lock               sync.Mutex
	isTrackingProgress bool
	bars               map[*mpb.Bar]bool
	progressContainer  *mpb.Progress
}

// NewCLI builds a CLI view, disabling colors and progress bars when stdout
// isn't attached to a real terminal.
func NewCLI(debug, verbose bool) *CLI {
	cli := &CLI{IsDebug: debug, IsVerbose: verbose}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		cli.DisableColors = true
		cli.DisableTTY = true
	}
	return cli
}

// Stdout returns the stream report lines are written to, routed through
// go-colorable so ANSI sequences render on Windows consoles too.
func (log *CLI) Stdout() io.Writer {
	return colorable.NewColorableStdout()
}

// Debugf is a wrapper function that executes logrus.Tracef if debug is enabled.
func (log *CLI) Debugf(format string, x ...interface{}) {
	if log.IsDebug {
		logrus.Tracef(format, x...)
	}
}

// Errorf is a wrapper function that executes logrus.Errorf
func (log *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(format, x...)
}

// Infof is a wrapper function that executes logrus.Debugf only if verbose is enabled.
func (log *CLI) Infof(format string, x ...interface{}) {
	if log.IsVerbose {
		logrus.Debugf(format, x...)
	}
}

// Printf is a wrapper function that executes logrus.Printf
func (log *CLI) Printf(format string, x ...interface{}) {
	logrus.Printf(format, x...)
}

// Warnf is a wrapper function that executes logrus.Warnf
func (log *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(format, x...)
}

// IsInfoEnabled returns whether InfoLevel logging is enabled
func (log *CLI) IsInfoEnabled() bool {
	return logrus.IsLevelEnabled(logrus.InfoLevel)
}

// IsDebugEnabled returns whether DebugLevel logging is enabled
func (log *CLI) IsDebugEnabled() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

// Section prints a header line grouping the checks that follow, e.g.
// "[FSCK] Check valid ssa node blocks".
func (log *CLI) Section(title string) {
	if log.DisableColors {
		fmt.Fprintf(log.Stdout(), "[FSCK] %s\n", title)
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(log.Stdout(), "[FSCK] %s\n", bold(title))
}

// Check prints a single result line for a named check, colored green for a
// pass and red for a failure, matching the original tool's "[Ok..]"/"[Fail]"
// tabular report.
func (log *CLI) Check(name string, ok bool) {
	status := "[Ok..]"
	if !ok {
		status = "[Fail]"
	}
	if log.DisableColors {
		fmt.Fprintf(log.Stdout(), "[FSCK] %-54s %s\n", name, status)
		return
	}
	colorFunc := color.New(color.FgGreen).SprintFunc()
	if !ok {
		colorFunc = color.New(color.FgRed).SprintFunc()
	}
	fmt.Fprintf(log.Stdout(), "[FSCK] %-54s %s\n", name, colorFunc(status))
}

// NewProgress creates a progress object tracking up to 'total' units (e.g.
// blocks in the main area).
func (log *CLI) NewProgress(label string, total int64) Progress {

	if log.DisableTTY {
		return &nilProgress{total: total}
	}

	log.lock.Lock()
	defer log.lock.Unlock()

	if !log.isTrackingProgress {
		log.isTrackingProgress = true
		log.progressContainer = mpb.New(mpb.WithWidth(80))
		log.bars = make(map[*mpb.Bar]bool)
	}

	p := log.progressContainer.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight}),
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	log.bars[p] = true

	bar := &pb{
		log:      log,
		p:        p,
		total:    total,
		interval: time.Millisecond * 100,
	}
	bar.nextUpdate = time.Now().Add(bar.interval)

	return bar
}

type nilProgress struct {
	cursor int64
	total  int64
}

// Increment advances nilProgress's counter; nothing is drawn.
func (np *nilProgress) Increment(n int64) {
	np.cursor += n
}

// Finish nilProgress does nothing...
func (np *nilProgress) Finish(success bool) {

}

type pb struct {
	log    *CLI
	p      *mpb.Bar
	closed bool
	total  int64
	bar    int64

	buffered   int64
	interval   time.Duration
	nextUpdate time.Time
}

// Increment increases the progress on the bar
func (pb *pb) Increment(n int64) {
	pb.buffered += n
	pb.bar += n
	if !time.Now().Before(pb.nextUpdate) {
		pb.flush()
	}
}

func (pb *pb) flush() {
	pb.nextUpdate = time.Now().Add(pb.interval)
	pb.p.IncrInt64(pb.buffered)
	pb.buffered = 0
}

// Finish closes the progress bar object
func (pb *pb) Finish(success bool) {
	if pb.closed {
		return
	}
	pb.flush()
	pb.closed = true
	if pb.bar != pb.total || pb.total == 0 || !success {
		pb.p.Abort(false)
	}

	pb.log.lock.Lock()
	defer pb.log.lock.Unlock()
	delete(pb.log.bars, pb.p)

	if len(pb.log.bars) == 0 {
		pb.log.bars = nil
		pb.log.isTrackingProgress = false
		pb.log.progressContainer.Wait()
		pb.log.progressContainer = nil
	}
}

// Format formats our logger for terminal use
func (log *CLI) Format(entry *logrus.Entry) ([]byte, error) {

	faint := color.New(color.Faint).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	x := entry.Message
	if !log.DisableColors {
		switch entry.Level {
		case logrus.TraceLevel:
			x = fmt.Sprintf("%s\n", faint(x))
		case logrus.DebugLevel:
			x = fmt.Sprintf("%s\n", blue(x))
		case logrus.InfoLevel:
			x = fmt.Sprintf("%s\n", x)
		case logrus.WarnLevel:
			x = fmt.Sprintf("%s\n", yellow(x))
		case logrus.ErrorLevel:
			x = fmt.Sprintf("%s\n", red(x))
		default:
		}
	} else {
		x = fmt.Sprintf("%s\n", x)
	}

	return []byte(x), nil

}
