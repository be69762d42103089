package bus

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestPidManagerBasics(t *testing.T) {
	tempDir := t.TempDir()
	pm := &pidManager{path: filepath.Join(tempDir, PidName)}

	t.Run("create and remove PID file", func(t *testing.T) {
		if err := pm.create(); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		pidData, err := os.ReadFile(pm.path)
		if err != nil {
			t.Fatalf("failed to read PID file: %v", err)
		}
		if string(pidData) != strconv.Itoa(os.Getpid()) {
			t.Errorf("PID file contains %q, expected current pid", string(pidData))
		}

		if err := pm.remove(); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if _, err := os.Stat(pm.path); !os.IsNotExist(err) {
			t.Error("PID file should not exist after removal")
		}
	})

	t.Run("checkExisting with no PID file", func(t *testing.T) {
		if err := pm.checkExisting(); err != nil {
			t.Errorf("checkExisting should not error when no PID file exists: %v", err)
		}
	})

	t.Run("checkExisting with current process", func(t *testing.T) {
		if err := pm.create(); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		defer pm.remove()

		if err := pm.checkExisting(); err == nil {
			t.Error("checkExisting should fail when process is running")
		}
	})

	t.Run("checkExisting with stale PID file", func(t *testing.T) {
		if err := os.WriteFile(pm.path, []byte("99999"), 0o600); err != nil {
			t.Fatalf("failed to write stale PID file: %v", err)
		}

		if err := pm.checkExisting(); err != nil {
			t.Errorf("checkExisting should succeed with stale PID: %v", err)
		}
		if _, err := os.Stat(pm.path); !os.IsNotExist(err) {
			t.Error("stale PID file should be removed")
		}
	})

	t.Run("checkExisting with invalid PID file", func(t *testing.T) {
		if err := os.WriteFile(pm.path, []byte("invalid"), 0o600); err != nil {
			t.Fatalf("failed to write invalid PID file: %v", err)
		}

		if err := pm.checkExisting(); err != nil {
			t.Errorf("checkExisting should succeed with invalid PID: %v", err)
		}
		if _, err := os.Stat(pm.path); !os.IsNotExist(err) {
			t.Error("invalid PID file should be removed")
		}
	})
}

func TestIsProcessAlive(t *testing.T) {
	pm := &pidManager{}

	if !pm.isProcessAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if pm.isProcessAlive(99999) {
		t.Error("non-existent process should not be alive")
	}
}

func TestSocketManagerBasics(t *testing.T) {
	tempDir := t.TempDir()
	sm := &socketManager{path: filepath.Join(tempDir, SockName)}

	t.Run("listen and dial", func(t *testing.T) {
		listener, err := sm.listen()
		if err != nil {
			t.Fatalf("listen failed: %v", err)
		}
		defer listener.Close()

		connCh := make(chan error, 1)
		go func() {
			conn, err := listener.Accept()
			if err != nil {
				connCh <- err
				return
			}
			defer conn.Close()

			buf := make([]byte, 1024)
			n, err := conn.Read(buf)
			if err != nil {
				connCh <- err
				return
			}
			_, err = conn.Write(buf[:n])
			connCh <- err
		}()

		time.Sleep(10 * time.Millisecond)

		conn, err := sm.dial()
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		defer conn.Close()

		testMsg := "hello"
		if _, err := conn.Write([]byte(testMsg)); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(buf[:n]) != testMsg {
			t.Errorf("got %q, expected %q", string(buf[:n]), testMsg)
		}

		if err := <-connCh; err != nil {
			t.Errorf("background connection error: %v", err)
		}
	})

	t.Run("dial without listener", func(t *testing.T) {
		sm2 := &socketManager{path: filepath.Join(tempDir, "missing.sock")}
		if _, err := sm2.dial(); err == nil {
			t.Error("dial should fail when no listener exists")
		}
	})
}

func TestCommandProtocol(t *testing.T) {
	tempDir := t.TempDir()
	sm := &socketManager{path: filepath.Join(tempDir, SockName)}

	listener, err := sm.listen()
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()

				buf := make([]byte, 2)
				n, err := c.Read(buf)
				if err != nil || n != 2 {
					return
				}

				switch buf[0] {
				case CmdToggle:
					fmt.Fprint(c, "OK listening\n")
				case CmdDictate:
					fmt.Fprint(c, "OK dictating\n")
				case CmdEndDictation:
					fmt.Fprint(c, "OK dictation ended\n")
				case CmdStatus:
					fmt.Fprint(c, "STATUS status=idle dictating=false\n")
				case CmdVersion:
					fmt.Fprintf(c, "STATUS proto=%s\n", ProtoVer)
				case CmdQuit:
					fmt.Fprint(c, "OK quitting\n")
				default:
					fmt.Fprintf(c, "ERR unknown=%q\n", buf[0])
				}
			}(conn)
		}
	}()

	time.Sleep(10 * time.Millisecond)

	tests := []struct {
		cmd      byte
		expected string
	}{
		{CmdToggle, "OK listening\n"},
		{CmdDictate, "OK dictating\n"},
		{CmdEndDictation, "OK dictation ended\n"},
		{CmdStatus, "STATUS status=idle dictating=false\n"},
		{CmdVersion, fmt.Sprintf("STATUS proto=%s\n", ProtoVer)},
		{CmdQuit, "OK quitting\n"},
		{'x', "ERR unknown='x'\n"},
	}

	for _, tt := range tests {
		conn, err := sm.dial()
		if err != nil {
			t.Errorf("dial failed for command %c: %v", tt.cmd, err)
			continue
		}

		if _, err := conn.Write([]byte{tt.cmd, '\n'}); err != nil {
			conn.Close()
			t.Errorf("write failed for command %c: %v", tt.cmd, err)
			continue
		}

		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		conn.Close()
		if err != nil {
			t.Errorf("read failed for command %c: %v", tt.cmd, err)
			continue
		}

		if got := string(buf[:n]); got != tt.expected {
			t.Errorf("command %c: got %q, expected %q", tt.cmd, got, tt.expected)
		}
	}
}

func TestPathFunctions(t *testing.T) {
	sockPath, err := SockPath()
	if err != nil {
		t.Fatalf("SockPath failed: %v", err)
	}
	if !filepath.IsAbs(sockPath) {
		t.Error("SockPath should return an absolute path")
	}
	if filepath.Base(sockPath) != SockName {
		t.Errorf("SockPath should end with %s, got %s", SockName, filepath.Base(sockPath))
	}

	pidPath, err := getPidPath()
	if err != nil {
		t.Fatalf("getPidPath failed: %v", err)
	}
	if filepath.Base(pidPath) != PidName {
		t.Errorf("getPidPath should end with %s, got %s", PidName, filepath.Base(pidPath))
	}
}
