package hub

import (
	"bufio"
	"io"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/samnetworks/samcore/src/settings"
)

// Supervisor launches the persistent nodes configured in the settings
// document and streams their output to the hub's log. Children are not
// restarted on exit; their exit code is logged and operators act on it.
type Supervisor struct {
	l       sync.Mutex
	dataDir string
	logger  *logrus.Entry

	children map[string]*exec.Cmd
}

// NewSupervisor creates a supervisor rooted at the hub's working directory.
func NewSupervisor(dataDir string, logger *logrus.Entry) *Supervisor {
	return &Supervisor{
		dataDir:  dataDir,
		logger:   logger,
		children: make(map[string]*exec.Cmd),
	}
}

// SpawnAll walks the package records and spawns every enabled persistent
// node other than the hub itself.
func (s *Supervisor) SpawnAll(store *settings.Store, hubName string) {
	pkgs, ok := store.Get("packages")
	if !ok {
		return
	}

	records, ok := settings.Clone(pkgs).(map[string]interface{})
	if !ok {
		return
	}

	for name, rec := range records {
		if name == hubName {
			continue
		}

		pkg, ok := rec.(map[string]interface{})
		if !ok {
			continue
		}

		if pkg["enabled"] != true || pkg["persistent"] != true {
			continue
		}

		if err := s.Spawn(name); err != nil {
			s.logger.WithFields(logrus.Fields{
				"node":  name,
				"error": err,
			}).Error("Failed to spawn persistent node")
		}
	}
}

// Spawn launches one node: the entry point named after the package, inside
// the sibling directory named after the package. No environment is
// injected.
func (s *Supervisor) Spawn(name string) error {
	dir := filepath.Join(s.dataDir, name)

	cmd := exec.Command(filepath.Join(dir, name))
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	s.l.Lock()
	s.children[name] = cmd
	s.l.Unlock()

	s.logger.WithFields(logrus.Fields{
		"node": name,
		"pid":  cmd.Process.Pid,
	}).Info("Spawned persistent node")

	go s.stream(name, "stdout", stdout)
	go s.stream(name, "stderr", stderr)

	go func() {
		err := cmd.Wait()

		exitCode := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}

		s.logger.WithFields(logrus.Fields{
			"node":      name,
			"exit_code": exitCode,
		}).Info("Persistent node exited")

		s.l.Lock()
		delete(s.children, name)
		s.l.Unlock()
	}()

	return nil
}

// stream relays one output pipe of a child into the log, line by line.
func (s *Supervisor) stream(name, channel string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.WithFields(logrus.Fields{
			"node":    name,
			"channel": channel,
		}).Info(scanner.Text())
	}
}

// Running returns the names of the children currently alive.
func (s *Supervisor) Running() []string {
	s.l.Lock()
	defer s.l.Unlock()

	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	return names
}

// Stop kills every running child.
func (s *Supervisor) Stop() {
	s.l.Lock()
	defer s.l.Unlock()

	for name, cmd := range s.children {
		s.logger.WithField("node", name).Debug("Killing persistent node")
		cmd.Process.Kill()
	}
}
