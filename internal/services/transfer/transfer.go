// Package transfer runs downloads through wget or curl subprocesses,
// turning their stderr progress output into typed events. The tools
// handle redirects, resume ranges and retries; this package supervises
// them and normalizes their exit codes.
package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Tool selects the download binary
type Tool string

const (
	ToolWget Tool = "wget"
	ToolCurl Tool = "curl"
)

// ErrRangeRejected means the server refused the resume offset; the
// caller restarts the download from zero.
var ErrRangeRejected = errors.New("server rejected resume range")

// ErrStopped means the transfer was killed on purpose
var ErrStopped = errors.New("transfer stopped")

// Options describes one download
type Options struct {
	Tool       Tool
	URL        string
	TempPath   string
	ResumeFrom int64
}

// buildArgs assembles the tool's argument list. Both tools write the
// payload to TempPath and their progress to stderr.
func buildArgs(opts Options) []string {
	switch opts.Tool {
	case ToolCurl:
		args := []string{"-L", "-f", "--retry", "2"}
		if opts.ResumeFrom > 0 {
			args = append(args, "-C", strconv.FormatInt(opts.ResumeFrom, 10))
		}
		return append(args, "-o", opts.TempPath, opts.URL)
	default:
		args := []string{"--tries=3", "--progress=dot:mega"}
		if opts.ResumeFrom > 0 {
			args = append(args, "-c")
		}
		return append(args, "-O", opts.TempPath, opts.URL)
	}
}

// Transfer is one running download subprocess
type Transfer struct {
	cmd        *exec.Cmd
	tool       Tool
	resumeFrom int64
	progress   chan Progress
	scanDone   chan struct{}
	stopped    atomic.Bool
	logger     *logrus.Logger
}

// Start launches the subprocess and begins consuming its progress
func Start(ctx context.Context, opts Options, logger *logrus.Logger) (*Transfer, error) {
	cmd := exec.CommandContext(ctx, string(opts.Tool), buildArgs(opts)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Tool, err)
	}

	logger.WithFields(logrus.Fields{
		"tool":   opts.Tool,
		"url":    opts.URL,
		"resume": opts.ResumeFrom,
	}).Debug("Started download subprocess")

	t := &Transfer{
		cmd:        cmd,
		tool:       opts.Tool,
		resumeFrom: opts.ResumeFrom,
		progress:   make(chan Progress, 16),
		scanDone:   make(chan struct{}),
		logger:     logger,
	}
	go t.consume(stderr)
	return t, nil
}

// Progress delivers parsed progress events. The channel closes when the
// subprocess's stderr drains; a slow consumer loses intermediate events,
// never the channel close.
func (t *Transfer) Progress() <-chan Progress {
	return t.progress
}

func (t *Transfer) consume(r io.Reader) {
	defer close(t.progress)
	defer close(t.scanDone)

	scanner := bufio.NewScanner(r)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		p, ok := parseProgress(t.tool, scanner.Text())
		if !ok {
			continue
		}
		// wget's byte counter continues from the preexisting file size
		// on resume; events carry session bytes only
		if t.tool == ToolWget && t.resumeFrom > 0 {
			if p.Downloaded >= t.resumeFrom {
				p.Downloaded -= t.resumeFrom
			} else {
				p.Downloaded = 0
			}
		}
		select {
		case t.progress <- p:
		default:
		}
	}
}

// Wait blocks until the subprocess exits and maps its exit code
func (t *Transfer) Wait() error {
	<-t.scanDone
	err := t.cmd.Wait()
	if t.stopped.Load() {
		return ErrStopped
	}
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return mapExitCode(t.tool, exitErr.ExitCode())
	}
	return fmt.Errorf("%s failed: %w", t.tool, err)
}

// Stop kills the subprocess. Wait then returns ErrStopped.
func (t *Transfer) Stop() {
	t.stopped.Store(true)
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
}

// mapExitCode turns tool-specific exit codes into errors. curl 33 is
// its explicit range failure; wget folds a 416 response into exit 8.
func mapExitCode(tool Tool, code int) error {
	switch {
	case code == 0:
		return nil
	case tool == ToolCurl && code == 33:
		return ErrRangeRejected
	case tool == ToolWget && code == 8:
		return ErrRangeRejected
	default:
		return fmt.Errorf("%s exited with code %d", tool, code)
	}
}
