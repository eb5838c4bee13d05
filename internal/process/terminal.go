package process

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// terminal is a child process attached to a pseudo-terminal
type terminal struct {
	cmd  *exec.Cmd
	ptmx *os.File
	pid  int

	writeMu   sync.Mutex
	closeOnce sync.Once

	// done is closed once the exit has been fully handled
	done chan struct{}
}

type exitStatus struct {
	code   int
	signal int
}

func (s exitStatus) clean() bool {
	return s.code == 0 && s.signal == 0
}

type spawnSpec struct {
	shell string
	line  string
	dir   string
	cols  uint16
	rows  uint16
}

// commandLine joins command and args the way a user would type them; the
// shell does the word splitting.
func commandLine(command string, args []string) string {
	parts := append([]string{command}, args...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

func startTerminal(spec spawnSpec) (*terminal, error) {
	cmd := exec.Command(spec.shell, "-c", spec.line)
	cmd.Dir = spec.dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	// pty.Start puts the child in a new session, so its pid is also its
	// process group id
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: spec.cols, Rows: spec.rows})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	return &terminal{
		cmd:  cmd,
		ptmx: ptmx,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}, nil
}

// pump copies terminal output to onData until the pty is closed or drained
func (t *terminal) pump(onData func([]byte)) {
	buf := make([]byte, 32*1024)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			onData(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			// EIO once the slave side is closed on linux
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				log.Printf("[process] pty read for pid %d ended: %v", t.pid, err)
			}
			return
		}
	}
}

// wait blocks until the child exits and classifies how it ended
func (t *terminal) wait() exitStatus {
	err := t.cmd.Wait()
	state := t.cmd.ProcessState
	if state == nil {
		log.Printf("[process] wait for pid %d failed: %v", t.pid, err)
		return exitStatus{code: -1}
	}

	st := exitStatus{code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.signal = int(ws.Signal())
	}
	return st
}

// settle waits for the output pump to finish, then closes the pty. A
// grandchild holding the slave open must not block exit handling forever.
func (t *terminal) settle(pumped <-chan struct{}, grace time.Duration) {
	select {
	case <-pumped:
	case <-time.After(grace):
	}
	t.close()
}

func (t *terminal) close() {
	t.closeOnce.Do(func() {
		_ = t.ptmx.Close()
	})
}

// Write sends raw input to the terminal
func (t *terminal) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.ptmx.Write(p)
}

// signal delivers sig to the child's process group. A group that is already
// gone is not an error: the exit handler reconciles it.
func (t *terminal) signal(sig syscall.Signal) error {
	err := syscall.Kill(-t.pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w %d: %v", ErrSignal, t.pid, err)
	}
	return nil
}

func (t *terminal) exited() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
