package process

import (
	"errors"
	"os"
	"testing"

	"github.com/mitchellh/go-ps"
)

type fakeProc struct {
	pid, ppid int
	name      string
}

func (p fakeProc) Pid() int           { return p.pid }
func (p fakeProc) PPid() int          { return p.ppid }
func (p fakeProc) Executable() string { return p.name }

func useProcessTable(t *testing.T, procs []ps.Process, err error) {
	t.Helper()
	orig := listProcesses
	listProcesses = func() ([]ps.Process, error) { return procs, err }
	t.Cleanup(func() { listProcesses = orig })
}

func TestFindByName(t *testing.T) {
	useProcessTable(t, []ps.Process{
		fakeProc{pid: 10, ppid: 1, name: "clash-core.exe"},
		fakeProc{pid: 11, ppid: 1, name: "explorer.exe"},
		fakeProc{pid: 12, ppid: 10, name: "CLASH-CORE.EXE"},
	}, nil)

	got, err := FindByName("clash-core.exe")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if len(got) != 2 || got[0].PID != 10 || got[1].PID != 12 {
		t.Fatalf("unexpected matches: %+v", got)
	}
}

func TestFindByNameListError(t *testing.T) {
	useProcessTable(t, nil, errors.New("no procfs"))
	if _, err := FindByName("x"); err == nil {
		t.Fatal("expected error from process listing")
	}
}

func TestFindProcessSelf(t *testing.T) {
	info, found, err := FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess: %v", err)
	}
	if !found || info.PID != os.Getpid() {
		t.Fatalf("expected to find own process, got %+v found=%v", info, found)
	}
}
