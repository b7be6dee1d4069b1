package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// logStreamEntry is the JSON shape pushed to websocket clients.
type logStreamEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// logStreamer polls arbor's memory writer and fans new entries out to every
// connected /ws client. One streamer is shared by the server for its lifetime.
type logStreamer struct {
	logger arbor.ILogger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex

	seenMu sync.Mutex
	seen   map[string]bool
}

func newLogStreamer(logger arbor.ILogger) *logStreamer {
	return &logStreamer{
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		seen:    make(map[string]bool),
	}
}

func (s *logStreamer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	s.mu.Lock()
	s.clients[conn] = &sync.Mutex{}
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Info().Int("clients", count).Msg("log stream client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		remaining := len(s.clients)
		s.mu.Unlock()
		conn.Close()
		s.logger.Info().Int("clients", remaining).Msg("log stream client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("log stream websocket error")
			}
			return
		}
	}
}

// start begins the periodic poll-and-broadcast loop. It returns immediately;
// the loop runs until the process exits.
func (s *logStreamer) start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			s.mu.RLock()
			count := len(s.clients)
			s.mu.RUnlock()
			if count > 0 {
				s.poll()
			}
		}
	}()
}

func (s *logStreamer) poll() {
	memWriter := arbor.GetRegisteredMemoryWriter(arbor.WRITER_MEMORY)
	if memWriter == nil {
		return
	}
	entries, err := memWriter.GetEntriesWithLimit(100)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read memory log entries")
		return
	}

	s.seenMu.Lock()
	fresh := make(map[string]bool, len(entries))
	var toSend []string
	for key, line := range entries {
		fresh[key] = true
		if !s.seen[key] {
			toSend = append(toSend, line)
		}
	}
	s.seen = fresh
	s.seenMu.Unlock()

	for _, line := range toSend {
		s.broadcast(parseLogLine(line))
	}
}

func (s *logStreamer) broadcast(entry logStreamEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn, mu := range s.clients {
		mu.Lock()
		err := conn.WriteJSON(entry)
		mu.Unlock()
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to write log stream entry")
		}
	}
}

// parseLogLine converts arbor's memory writer format
// "LVL|date time|message with fields" into a logStreamEntry.
func parseLogLine(line string) logStreamEntry {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return logStreamEntry{Timestamp: time.Now().Format("15:04:05"), Level: "info", Message: line}
	}

	level := "info"
	switch strings.TrimSpace(parts[0]) {
	case "ERR", "ERROR", "FATAL", "PANIC":
		level = "error"
	case "WRN", "WARN":
		level = "warn"
	}

	timestamp := time.Now().Format("15:04:05")
	if fields := strings.Fields(strings.TrimSpace(parts[1])); len(fields) >= 2 {
		timestamp = fields[len(fields)-1]
	}

	return logStreamEntry{Timestamp: timestamp, Level: level, Message: strings.TrimSpace(parts[2])}
}
