// Package external runs an analysis implementation as a subprocess.
//
// The protocol is one invocation per record:
//
//	<path> [args...] --fs <hz> [--rr] <file>
//
// where <file> holds one number per line (samples, or RR intervals in ms when
// --rr is given). On success the process prints one JSON metrics record on
// stdout and exits 0. On failure it may print a Reply with Error and Kind set
// so the caller can tell short input from a crash.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region reply
// Reply is the error form of the stdout protocol.
type Reply struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteRecord writes a successful result in protocol form.
func WriteRecord(w io.Writer, rec hrv.Record) error {
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// WriteError writes err in protocol form, keeping its taxonomy kind.
func WriteError(w io.Writer, err error) error {
	rep := Reply{Error: err.Error(), Kind: hrverr.KindName(err)}
	if e := json.NewEncoder(w).Encode(rep); e != nil {
		return fmt.Errorf("encode error reply: %w", e)
	}
	return nil
}
// #endregion reply

// #region process
// pipeWaitDelay bounds how long a cancelled run waits for its output pipes
// to close. A grandchild that inherited them could otherwise hold the run
// open past its deadline.
const pipeWaitDelay = time.Second

// Process is a pipeline.Pipeline backed by an executable.
type Process struct {
	Path string
	Args []string // inserted before the protocol flags
	Env  []string // appended to the current environment
}

var _ pipeline.Pipeline = (*Process)(nil)

// New returns a Process for path.
func New(path string, args ...string) *Process {
	return &Process{Path: path, Args: args}
}

// Name returns "exec:<path>".
func (p *Process) Name() string { return "exec:" + p.Path }

// AnalyzeSignal writes w to a temporary file and runs the process on it.
func (p *Process) AnalyzeSignal(ctx context.Context, w signal.Waveform) (pipeline.Result, error) {
	return p.run(ctx, w.Samples, w.SampleRate, false)
}

// AnalyzeRR runs the process with --rr on a file of intervals.
func (p *Process) AnalyzeRR(ctx context.Context, intervalsMs []float64) (pipeline.Result, error) {
	return p.run(ctx, intervalsMs, 1000, true)
}

func (p *Process) run(ctx context.Context, values []float64, fs float64, rrMode bool) (pipeline.Result, error) {
	// 1. Input file
	path, err := writeValues(values)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer os.Remove(path)

	// 2. Invoke
	args := append([]string{}, p.Args...)
	args = append(args, "--fs", strconv.FormatFloat(fs, 'g', -1, 64))
	if rrMode {
		args = append(args, "--rr")
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, p.Path, args...)
	killGroupOnCancel(cmd)
	cmd.WaitDelay = pipeWaitDelay
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	// 3. Classify
	if ctx.Err() != nil {
		return pipeline.Result{}, fmt.Errorf("%w: %w", hrverr.ExternalProcess(p.Name(), "timed out or cancelled"), ctx.Err())
	}
	if runErr != nil {
		if rep, ok := decodeReply(stdout.Bytes()); ok {
			if kind := hrverr.ByName(rep.Kind); kind != nil {
				return pipeline.Result{}, &hrverr.Error{Kind: kind, Op: p.Name(), Msg: rep.Error}
			}
			return pipeline.Result{}, hrverr.ExternalProcess(p.Name(), "%s", rep.Error)
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return pipeline.Result{}, hrverr.ExternalProcess(p.Name(), "exit code %d: %s", code, tail(stderr.String(), 512))
	}

	var rec hrv.Record
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &rec); err != nil {
		return pipeline.Result{}, hrverr.ExternalProcess(p.Name(), "malformed output: %v", err)
	}
	return pipeline.Result{Record: rec}, nil
}
// #endregion process

// #region helpers
func writeValues(values []float64) (string, error) {
	f, err := os.CreateTemp("", "hrv-input-*.txt")
	if err != nil {
		return "", fmt.Errorf("create input file: %w", err)
	}
	var b strings.Builder
	for _, v := range values {
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write input file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close input file: %w", err)
	}
	return f.Name(), nil
}

func decodeReply(out []byte) (Reply, bool) {
	var rep Reply
	if err := json.Unmarshal(bytes.TrimSpace(out), &rep); err != nil || rep.Error == "" {
		return Reply{}, false
	}
	return rep, true
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
// #endregion helpers
