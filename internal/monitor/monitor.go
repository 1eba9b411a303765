package monitor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/poppop/racer/internal/session"
	"github.com/poppop/racer/internal/sink/memory"
)

// DefaultInterval is used when Dependencies.Interval is not positive.
const DefaultInterval = time.Second

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger   *slog.Logger
	Memory   *memory.Backend
	Session  *session.Context
	Pending  func() int // queued sink events, may be nil
	Path     string
	Interval time.Duration
}

// Report is the content of the status file.
type Report struct {
	Time        time.Time      `json:"time"`
	Session     session.Info   `json:"session"`
	Sink        *memory.Status `json:"sink,omitempty"`
	SinkPending int            `json:"sinkPending"`
}

// Service periodically writes a status report to a file.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	now       func() time.Time
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps: deps,
		now:  time.Now,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status returns the current report.
func (s *Service) Status() Report {
	r := Report{Time: s.now().UTC()}
	if s.deps.Session != nil {
		r.Session = s.deps.Session.Get()
	}
	if s.deps.Memory != nil {
		st := s.deps.Memory.Status()
		r.Sink = &st
	}
	if s.deps.Pending != nil {
		r.SinkPending = s.deps.Pending()
	}
	return r
}

// Start starts the status monitor goroutine. The status file is created
// before Start returns.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if s.deps.Path == "" {
		return errors.New("status path is empty")
	}

	statusFile, err := os.Create(s.deps.Path)
	if err != nil {
		return err
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(statusFile, s.stopChan, s.done)
	return nil
}

func (s *Service) run(statusFile *os.File, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer statusFile.Close()

	logger := s.deps.Logger
	logger.Debug("Starting status monitor", "path", s.deps.Path, "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			// one last report so the file reflects the final state
			if _, err := s.write(statusFile); err != nil {
				logger.Error("Error writing status file", "error", err)
			}
			return
		case <-ticker.C:
			report, err := s.write(statusFile)
			if err != nil {
				logger.Error("Error writing status file", "error", err)
				continue
			}
			logger.Debug("Status written", "raceId", report.Session.RaceID, "state", report.Session.State)
		}
	}
}

func (s *Service) write(statusFile *os.File) (Report, error) {
	report := s.Status()
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return report, err
	}
	if err := statusFile.Truncate(0); err != nil {
		return report, err
	}
	if _, err := statusFile.Seek(0, 0); err != nil {
		return report, err
	}
	_, err = statusFile.Write(append(data, '\n'))
	return report, err
}

// Stop stops the status monitor and waits for the final report.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()

	<-done
}
