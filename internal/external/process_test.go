package external

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// TestHelperProcess is not a real test. It stands in for a candidate
// executable when re-invoked by helperProcess.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("HRV_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[1:]

	rrMode := false
	var file string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--fs":
			i++
		case "--rr":
			rrMode = true
		default:
			file = args[i]
		}
	}
	data, _ := os.ReadFile(file)
	lines := strings.Count(string(data), "\n")

	switch os.Getenv("HRV_HELPER_MODE") {
	case "ok":
		rec := hrv.Record{BPM: hrv.Defined(70), NPeaks: hrv.Defined(float64(lines))}
		if rrMode {
			rec.Flags = []string{"rr"}
		}
		WriteRecord(os.Stdout, rec)
	case "short":
		WriteError(os.Stdout, hrverr.InsufficientData("helper", "only %d values", lines))
		os.Exit(1)
	case "crash":
		fmt.Fprintln(os.Stderr, "segmentation fault")
		os.Exit(3)
	case "garbage":
		fmt.Println("not json")
	case "hang":
		time.Sleep(10 * time.Second)
	case "spawn":
		// A hanging child that shares our stdout, like a shell script that
		// backgrounds a worker.
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", file)
		child.Env = append(os.Environ(), "HRV_HELPER_MODE=hang")
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		if err := child.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "start child: %v\n", err)
			os.Exit(4)
		}
		time.Sleep(10 * time.Second)
	}
	os.Exit(0)
}

func helperProcess(mode string) *Process {
	p := New(os.Args[0], "-test.run=TestHelperProcess", "--")
	p.Env = []string{"HRV_WANT_HELPER_PROCESS=1", "HRV_HELPER_MODE=" + mode}
	return p
}

func TestProcess_Record(t *testing.T) {
	p := helperProcess("ok")
	res, err := p.AnalyzeSignal(context.Background(), signal.New([]float64{1, 2, 3, 4}, 100))
	if err != nil {
		t.Fatalf("AnalyzeSignal: %v", err)
	}
	if res.Record.BPM.Or(0) != 70 || res.Record.NPeaks.Or(0) != 4 {
		t.Fatalf("unexpected record %+v", res.Record)
	}
	if res.Record.LF.IsDefined() {
		t.Fatal("expected absent metric to be undefined")
	}

	res, err = p.AnalyzeRR(context.Background(), []float64{800, 810})
	if err != nil {
		t.Fatalf("AnalyzeRR: %v", err)
	}
	if len(res.Record.Flags) != 1 || res.Record.Flags[0] != "rr" {
		t.Fatalf("expected --rr to reach the process, flags=%v", res.Record.Flags)
	}
}

func TestProcess_Failures(t *testing.T) {
	cases := []struct {
		mode string
		kind error
	}{
		{"short", hrverr.ErrInsufficientData},
		{"crash", hrverr.ErrExternalProcess},
		{"garbage", hrverr.ErrExternalProcess},
	}
	for _, c := range cases {
		_, err := helperProcess(c.mode).AnalyzeRR(context.Background(), []float64{800})
		if !errors.Is(err, c.kind) {
			t.Errorf("%s: expected %v, got %v", c.mode, c.kind, err)
		}
	}

	_, err := helperProcess("crash").AnalyzeRR(context.Background(), []float64{800})
	if !strings.Contains(err.Error(), "exit code 3") || !strings.Contains(err.Error(), "segmentation fault") {
		t.Errorf("expected exit code and stderr in %q", err)
	}
}

func TestProcess_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := helperProcess("hang").AnalyzeRR(ctx, []float64{800, 810})
	if !errors.Is(err, hrverr.ErrExternalProcess) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected external process timeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("process was not killed on timeout")
	}
}

func TestProcess_TimeoutKillsChildren(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := helperProcess("spawn").AnalyzeRR(ctx, []float64{800, 810})
	if !errors.Is(err, hrverr.ErrExternalProcess) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected external process timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("run held open by child process for %v", elapsed)
	}
}
