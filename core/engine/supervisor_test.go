package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	"clash-launcher/internal/platform"
	"clash-launcher/internal/process"
)

const fakeEngineEnv = "CLASH_LAUNCHER_FAKE_ENGINE"

// TestMain lets the test binary double as a fake engine when it is
// re-executed from a temp clash/ directory.
func TestMain(m *testing.M) {
	switch os.Getenv(fakeEngineEnv) {
	case "":
		os.Exit(m.Run())
	case "crash":
		os.Exit(3)
	case "stubborn":
		signal.Ignore(os.Interrupt, syscall.SIGTERM)
		time.Sleep(time.Minute)
		os.Exit(0)
	default:
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case <-time.After(time.Minute):
		}
		os.Exit(0)
	}
}

// installFakeEngine copies the test binary to <dir>/clash/<engine name> and
// writes an empty config document.
func installFakeEngine(t *testing.T, mode string) Options {
	t.Helper()
	dir := t.TempDir()
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	dst := filepath.Join(platform.GetEngineDir(dir), platform.GetExecutableName())
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	copyFile(t, self, dst)

	cfg := filepath.Join(dir, "config", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(cfg), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg, []byte("mixed-port: 7890\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(fakeEngineEnv, mode)
	return Options{
		WorkDir:     dir,
		ConfigPath:  cfg,
		Settle:      300 * time.Millisecond,
		StopTimeout: 500 * time.Millisecond,
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	in, err := os.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStartTwiceKeepsOneHandle(t *testing.T) {
	s := NewSupervisor(installFakeEngine(t, "serve"))
	t.Cleanup(func() { s.Stop(context.Background()) })

	ok, err := s.Start(context.Background())
	if err != nil || !ok {
		t.Fatalf("Start: ok=%v err=%v", ok, err)
	}
	pid := s.PID()
	ok, err = s.Start(context.Background())
	if err != nil || !ok {
		t.Fatalf("second Start: ok=%v err=%v", ok, err)
	}
	if s.PID() != pid {
		t.Errorf("pid changed from %d to %d", pid, s.PID())
	}
	st := s.Status()
	if !st.Running || st.State != "running" {
		t.Errorf("status = %+v", st)
	}
}

func TestConcurrentStartKeepsOneHandle(t *testing.T) {
	s := NewSupervisor(installFakeEngine(t, "serve"))
	t.Cleanup(func() { s.Stop(context.Background()) })

	const callers = 8
	oks := make([]bool, callers)
	pids := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.Start(context.Background())
			if err != nil {
				t.Errorf("Start %d: %v", i, err)
			}
			oks[i] = ok
			pids[i] = s.PID()
		}(i)
	}
	wg.Wait()

	for i := range oks {
		if !oks[i] {
			t.Errorf("Start %d returned false", i)
		}
		if pids[i] == 0 || pids[i] != pids[0] {
			t.Errorf("pids = %v, want one pid", pids)
			break
		}
	}
}

func TestConcurrentStartStopLeavesNoStrayProcess(t *testing.T) {
	s := NewSupervisor(installFakeEngine(t, "serve"))
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = map[int]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				if ok, _ := s.Start(ctx); ok {
					if pid := s.PID(); pid != 0 {
						mu.Lock()
						seen[pid] = true
						mu.Unlock()
					}
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				s.Stop(ctx)
			}
		}()
	}
	wg.Wait()

	// Whatever is tracked now is the only engine that may still be alive.
	st := s.Status()
	for pid := range seen {
		if st.Running && pid == st.PID {
			continue
		}
		if _, found, err := process.FindProcess(pid); err == nil && found {
			t.Errorf("untracked engine pid %d still running", pid)
		}
	}

	s.Stop(ctx)
	if s.Status().Running {
		t.Fatal("engine tracked after final Stop")
	}
	for pid := range seen {
		if _, found, err := process.FindProcess(pid); err == nil && found {
			t.Errorf("engine pid %d survived Stop", pid)
		}
	}
}

func TestStopClearsHandle(t *testing.T) {
	s := NewSupervisor(installFakeEngine(t, "serve"))
	if ok, err := s.Start(context.Background()); !ok || err != nil {
		t.Fatalf("Start: ok=%v err=%v", ok, err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := s.Status()
	if st.Running || st.PID != 0 || st.State != "stopped" {
		t.Errorf("status after stop = %+v", st)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signal handling differs on windows")
	}
	s := NewSupervisor(installFakeEngine(t, "stubborn"))
	if ok, err := s.Start(context.Background()); !ok || err != nil {
		t.Fatalf("Start: ok=%v err=%v", ok, err)
	}
	start := time.Now()
	s.Stop(context.Background())
	if s.Status().Running {
		t.Fatal("engine still tracked after Stop")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Stop took %v", time.Since(start))
	}
}

func TestStopWhenNeverStarted(t *testing.T) {
	s := NewSupervisor(Options{})
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st := s.Status(); st.Running || st.State != "stopped" {
		t.Errorf("status = %+v", st)
	}
}

func TestStartEngineExitsDuringSettle(t *testing.T) {
	s := NewSupervisor(installFakeEngine(t, "crash"))
	ok, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if ok {
		t.Fatal("Start should report false for a crashing engine")
	}
	if s.Status().Running {
		t.Error("crashed engine must not be tracked")
	}
}

func TestStartMissingExecutable(t *testing.T) {
	dir := t.TempDir()
	s := NewSupervisor(Options{WorkDir: dir, ConfigPath: filepath.Join(dir, "config.yaml")})
	_, err := s.Start(context.Background())
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("err = %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || len(nf.Searched) != 1 {
		t.Errorf("err = %#v", err)
	}
}

func TestStartMissingConfig(t *testing.T) {
	opts := installFakeEngine(t, "serve")
	opts.ConfigPath = filepath.Join(opts.WorkDir, "nope.yaml")
	s := NewSupervisor(opts)
	if _, err := s.Start(context.Background()); !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("err = %v", err)
	}
}

func TestCandidatesOrder(t *testing.T) {
	got := Candidates(Options{ResourceDir: "/res", WorkDir: "/cwd", InstallDir: "/inst", ExecutableName: "core"})
	want := []string{
		filepath.Join("/res", "clash", "core"),
		filepath.Join("/cwd", "clash", "core"),
		filepath.Join("/inst", "clash", "core"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLocatePrefersFirstExisting(t *testing.T) {
	res, cwd := t.TempDir(), t.TempDir()
	for _, base := range []string{res, cwd} {
		p := filepath.Join(base, "clash", "core")
		os.MkdirAll(filepath.Dir(p), 0o755)
		os.WriteFile(p, []byte("x"), 0o755)
	}
	got, err := Locate(Options{ResourceDir: res, WorkDir: cwd, ExecutableName: "core"})
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(res, "clash", "core") {
		t.Errorf("Locate = %s", got)
	}
}
