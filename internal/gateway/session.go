package gateway

import (
	"net/http"
	"sort"
	"sync"
)

// Session holds the ranking service cookies of one operator.
// It is safe for concurrent use and can be snapshotted for persistence.
type Session struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
}

// NewSession restores a session from previously saved cookies
func NewSession(cookies []*http.Cookie) *Session {
	s := &Session{cookies: make(map[string]*http.Cookie, len(cookies))}
	for _, c := range cookies {
		s.cookies[c.Name] = c
	}
	return s
}

// Cookies returns a stable snapshot of the stored cookies
func (s *Session) Cookies() []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*http.Cookie, 0, len(s.cookies))
	for _, c := range s.cookies {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear drops every cookie
func (s *Session) Clear() {
	s.mu.Lock()
	s.cookies = make(map[string]*http.Cookie)
	s.mu.Unlock()
}

func (s *Session) apply(req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func (s *Session) absorb(resp *http.Response) {
	set := resp.Cookies()
	if len(set) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range set {
		if c.MaxAge < 0 || c.Value == "" {
			delete(s.cookies, c.Name)
			continue
		}
		s.cookies[c.Name] = c
	}
}
