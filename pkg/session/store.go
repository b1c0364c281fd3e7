package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/gofer/internal/observability"
	"github.com/rs/zerolog"
)

// Mode is the active behavior for a conversation.
type Mode string

const (
	// ModeLLM answers directly via the language model
	ModeLLM Mode = "llm"

	// ModeAgent routes messages into the agent loop
	ModeAgent Mode = "agent"
)

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
)

var validRoles = map[Role]bool{
	RoleUser:       true,
	RoleAssistant:  true,
	RoleToolCall:   true,
	RoleToolResult: true,
}

// Turn is one immutable entry in a transcript.
type Turn struct {
	Role      Role                   `json:"role"`
	Content   string                 `json:"content,omitempty"`
	ToolName  string                 `json:"tool_name,omitempty"`
	StepIndex int                    `json:"step_index,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Session is the persisted per-conversation record.
type Session struct {
	Key       string    `json:"key"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is a read-only copy of a session and its transcript.
type Snapshot struct {
	Session Session `json:"session"`
	Turns   []Turn  `json:"turns"`
}

// ErrSessionNotFound is returned when a mutation targets a key with no
// backing record.
var ErrSessionNotFound = errors.New("session not found")

// Store owns persisted sessions. Each key gets a meta record (mode,
// timestamps) and an append-only JSONL transcript. Appends to the same key
// are serialized by a per-key lock and never reorder or drop prior turns.
type Store struct {
	dir    string
	logger zerolog.Logger

	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// New creates a session store rooted at dir.
func New(dir string, logger zerolog.Logger) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".gofer", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	s := &Store{
		dir:        dir,
		logger:     logger.With().Str("component", "session").Logger(),
		writeLocks: make(map[string]*sync.Mutex),
	}

	s.logger.Info().Str("dir", dir).Msg("Session store initialized")
	s.updateActiveSessionsMetric()

	return s, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

func (s *Store) metaPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) transcriptPath(key string) string {
	return filepath.Join(s.dir, key+".jsonl")
}

func (s *Store) getWriteLock(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[key]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.writeLocks[key] = lock
	return lock
}

func (s *Store) updateActiveSessionsMetric() {
	keys, err := s.List()
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(keys))
}

// GetOrCreate returns the session record for key, creating it in llm mode
// on first contact.
func (s *Store) GetOrCreate(key string) (Session, error) {
	if err := validateKey(key); err != nil {
		return Session{}, err
	}

	lock := s.getWriteLock(key)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.readMeta(key)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, err
	}

	now := time.Now()
	sess = Session{
		Key:       key,
		Mode:      ModeLLM,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.writeMeta(sess); err != nil {
		return Session{}, err
	}

	file, err := os.OpenFile(s.transcriptPath(key), os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create transcript file: %w", err)
	}
	file.Close()

	s.updateActiveSessionsMetric()
	s.logger.Info().Str("session_key", key).Msg("Session created")

	return sess, nil
}

// Append appends one turn to the transcript. It is the sole transcript
// mutator; turns are immutable once written.
func (s *Store) Append(key string, turn Turn) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !validRoles[turn.Role] {
		return fmt.Errorf("invalid turn role: %q", turn.Role)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	lock := s.getWriteLock(key)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.readMeta(key)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(s.transcriptPath(key), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write turn: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync transcript file: %w", err)
	}

	sess.UpdatedAt = time.Now()
	if err := s.writeMeta(sess); err != nil {
		return err
	}

	s.logger.Debug().
		Str("session_key", key).
		Str("role", string(turn.Role)).
		Msg("Turn appended")

	return nil
}

// SetMode switches the session's mode. Mode is sticky until set again.
func (s *Store) SetMode(key string, mode Mode) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if mode != ModeLLM && mode != ModeAgent {
		return fmt.Errorf("invalid mode: %q", mode)
	}

	lock := s.getWriteLock(key)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.readMeta(key)
	if err != nil {
		return err
	}

	if sess.Mode == mode {
		return nil
	}

	sess.Mode = mode
	sess.UpdatedAt = time.Now()

	if err := s.writeMeta(sess); err != nil {
		return err
	}

	s.logger.Info().
		Str("session_key", key).
		Str("mode", string(mode)).
		Msg("Session mode changed")

	return nil
}

// Snapshot returns a read-only copy of the session and its transcript in
// append order.
func (s *Store) Snapshot(key string) (*Snapshot, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	lock := s.getWriteLock(key)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.readMeta(key)
	if err != nil {
		return nil, err
	}

	turns, err := s.readTranscript(key)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Session: sess, Turns: turns}, nil
}

// Reset deletes a session record and its transcript. Sessions are never
// deleted automatically; this exists for explicit external management.
func (s *Store) Reset(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	lock := s.getWriteLock(key)
	lock.Lock()
	defer lock.Unlock()

	for _, path := range []string{s.transcriptPath(key), s.metaPath(key)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}

	s.locksMu.Lock()
	delete(s.writeLocks, key)
	s.locksMu.Unlock()

	s.updateActiveSessionsMetric()
	s.logger.Info().Str("session_key", key).Msg("Session reset")

	return nil
}

// List returns all persisted session keys.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}

	return keys, nil
}

func (s *Store) readMeta(key string) (Session, error) {
	data, err := os.ReadFile(s.metaPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
		}
		return Session{}, fmt.Errorf("failed to read session meta: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("failed to parse session meta: %w", err)
	}

	return sess, nil
}

// writeMeta writes the meta record via temp file and rename so readers
// never observe a torn record.
func (s *Store) writeMeta(sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session meta: %w", err)
	}

	path := s.metaPath(sess.Key)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session meta: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session meta: %w", err)
	}

	return nil
}

func (s *Store) readTranscript(key string) ([]Turn, error) {
	file, err := os.Open(s.transcriptPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return []Turn{}, nil
		}
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	var turns []Turn
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var turn Turn
		if err := json.Unmarshal([]byte(line), &turn); err != nil {
			s.logger.Warn().
				Str("session_key", key).
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse transcript line, skipping")
			continue
		}

		turns = append(turns, turn)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	return turns, nil
}

// Close releases per-key lock bookkeeping.
func (s *Store) Close() error {
	s.locksMu.Lock()
	s.writeLocks = make(map[string]*sync.Mutex)
	s.locksMu.Unlock()

	s.logger.Info().Msg("Session store closed")
	return nil
}
