package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Client is a therapy practice client.
type Client struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Notes       string `json:"notes"`
	LastSession string `json:"lastSession,omitempty"`
}

// Script is a generated hypnosis script tied to a client.
type Script struct {
	ID        string   `json:"id"`
	ClientID  string   `json:"clientId"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Reframes  []string `json:"reframes"`
	CreatedAt string   `json:"createdAt"`
}

// AudioTrack is a synthesized audio asset in the audio lab.
type AudioTrack struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Duration string `json:"duration"`
	Type     string `json:"type"` // "induction", "transformation", "command-cell"
}

// Store keeps practice records in memory.
type Store struct {
	mu      sync.RWMutex
	clients map[string]Client
	scripts map[string]Script
	tracks  map[string]AudioTrack
}

// New creates an empty store.
func New() *Store {
	return &Store{
		clients: make(map[string]Client),
		scripts: make(map[string]Script),
		tracks:  make(map[string]AudioTrack),
	}
}

// CreateClient assigns an id and saves the client.
func (s *Store) CreateClient(c Client) Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.New().String()
	s.clients[c.ID] = c
	return c
}

// GetClient looks a client up by id.
func (s *Store) GetClient(id string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	return c, nil
}

// UpdateClient replaces the stored client with the same id.
func (s *Store) UpdateClient(c Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; !ok {
		return ErrNotFound
	}
	s.clients[c.ID] = c
	return nil
}

// DeleteClient removes the client and its scripts.
func (s *Store) DeleteClient(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return ErrNotFound
	}
	delete(s.clients, id)
	for sid, sc := range s.scripts {
		if sc.ClientID == id {
			delete(s.scripts, sid)
		}
	}
	return nil
}

// ListClients returns all clients sorted by name.
func (s *Store) ListClients() []Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TouchClientSession stamps the client's last session time.
func (s *Store) TouchClientSession(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return ErrNotFound
	}
	c.LastSession = at.Format(time.RFC3339)
	s.clients[id] = c
	return nil
}

// CreateScript assigns an id and creation time and saves the script.
func (s *Store) CreateScript(sc Script) Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc.ID = uuid.New().String()
	if sc.CreatedAt == "" {
		sc.CreatedAt = time.Now().Format(time.RFC3339)
	}
	s.scripts[sc.ID] = sc
	return sc
}

// GetScript looks a script up by id.
func (s *Store) GetScript(id string) (Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scripts[id]
	if !ok {
		return Script{}, ErrNotFound
	}
	return sc, nil
}

// DeleteScript removes the script.
func (s *Store) DeleteScript(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[id]; !ok {
		return ErrNotFound
	}
	delete(s.scripts, id)
	return nil
}

// ListScripts returns scripts, optionally filtered to one client, newest
// first.
func (s *Store) ListScripts(clientID string) []Script {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		if clientID != "" && sc.ClientID != clientID {
			continue
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// CreateTrack assigns an id and saves the audio track.
func (s *Store) CreateTrack(t AudioTrack) AudioTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.New().String()
	s.tracks[t.ID] = t
	return t
}

// DeleteTrack removes the track.
func (s *Store) DeleteTrack(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tracks, id)
	return nil
}

// ListTracks returns all tracks sorted by title.
func (s *Store) ListTracks() []AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AudioTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}
