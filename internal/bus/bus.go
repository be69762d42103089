// Package bus is the daemon's control surface: a unix socket carrying
// single-byte commands with line replies, plus a pid file guarding against
// double starts.
package bus

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

const SockName = "control.sock"
const PidName = "voxd.pid"
const ProtoVer = "0.1"

// Control commands, one byte each.
const (
	CmdToggle       = 't' // toggle listening
	CmdDictate      = 'd' // begin dictation into the clipboard sink
	CmdEndDictation = 'e' // release the dictation sink
	CmdStatus       = 's'
	CmdVersion      = 'v'
	CmdQuit         = 'q'
)

// ~/.cache/voxd/control.sock
func SockPath() (string, error) {
	return getSockPath()
}

func getSockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voxd", SockName), nil
}

// ~/.cache/voxd/voxd.pid
func getPidPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voxd", PidName), nil
}

type socketManager struct {
	path string
}

func (s *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(s.path) // stale socket from last run
	return net.Listen("unix", s.path)
}

func (s *socketManager) dial() (net.Conn, error) {
	return net.Dial("unix", s.path)
}

type pidManager struct {
	path string
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	return os.Remove(p.path)
}

// checkExisting errors when a live daemon owns the pid file. Stale and
// malformed pid files are cleaned up silently.
func (p *pidManager) checkExisting() error {
	pidData, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(string(pidData))
	if err != nil {
		_ = os.Remove(p.path)
		return nil
	}

	if !p.isProcessAlive(pid) {
		_ = os.Remove(p.path)
		return nil
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (p *pidManager) isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func newSocketManager() (*socketManager, error) {
	path, err := getSockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: path}, nil
}

func newPidManager() (*pidManager, error) {
	path, err := getPidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: path}, nil
}

func Listen() (net.Listener, error) {
	sm, err := newSocketManager()
	if err != nil {
		return nil, err
	}
	return sm.listen()
}

func Dial() (net.Conn, error) {
	sm, err := newSocketManager()
	if err != nil {
		return nil, err
	}
	return sm.dial()
}

// SendCommand writes one command byte and returns the daemon's reply line.
func SendCommand(cmd byte) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	if _, err := c.Write([]byte{cmd, '\n'}); err != nil {
		return "", err
	}

	return bufio.NewReader(c).ReadString('\n')
}

func CheckExistingDaemon() error {
	pm, err := newPidManager()
	if err != nil {
		return err
	}
	return pm.checkExisting()
}

func CreatePidFile() error {
	pm, err := newPidManager()
	if err != nil {
		return err
	}
	return pm.create()
}

func RemovePidFile() error {
	pm, err := newPidManager()
	if err != nil {
		return err
	}
	return pm.remove()
}
