// Package browsertest provides a scripted browser.Session for driver and
// orchestrator tests. Page content is declared up front through maps keyed
// by selector; every interaction is recorded so tests can assert on the
// exact call sequence.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Session implements browser.Session without a browser. The zero value is
// not usable; construct with New.
type Session struct {
	mu         sync.Mutex
	calls      []string
	closeCount int

	// Texts maps selector to the text Text returns.
	Texts map[string]string
	// Markup maps selector to the outer markup HTML returns.
	Markup map[string]string
	// Page is what PageHTML returns.
	Page string
	// Hidden marks selectors WaitVisible times out on and IsVisible
	// reports false for. Anything not listed is considered visible.
	Hidden map[string]bool
	// Results maps JS expressions to the value Evaluate decodes into out.
	Results map[string]any
	// Fail maps a recorded call (for example "Click #submit") to the error
	// that call returns.
	Fail map[string]error
	// Values records the last value Fill or Type sent per selector.
	Values map[string]string
}

func New() *Session {
	return &Session{
		Texts:   map[string]string{},
		Markup:  map[string]string{},
		Hidden:  map[string]bool{},
		Results: map[string]any{},
		Fail:    map[string]error{},
		Values:  map[string]string{},
	}
}

// Calls returns the recorded interactions in order.
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CloseCount reports how many times Close ran.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// CalledWith reports whether some recorded call equals key.
func (s *Session) CalledWith(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == key {
			return true
		}
	}
	return false
}

func (s *Session) record(method, arg string) error {
	key := method
	if arg != "" {
		key += " " + arg
	}
	s.mu.Lock()
	s.calls = append(s.calls, key)
	err := s.Fail[key]
	s.mu.Unlock()
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.record("Navigate", url)
}

func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := s.record("WaitVisible", selector); err != nil {
		return err
	}
	if s.Hidden[selector] {
		return fmt.Errorf("timeout waiting for %q", selector)
	}
	return nil
}

func (s *Session) WaitHidden(ctx context.Context, selector string) error {
	if err := s.record("WaitHidden", selector); err != nil {
		return err
	}
	if !s.Hidden[selector] {
		return fmt.Errorf("timeout waiting for %q to hide", selector)
	}
	return nil
}

func (s *Session) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := s.record("IsVisible", selector); err != nil {
		return false, err
	}
	return !s.Hidden[selector], nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.record("Click", selector)
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	s.mu.Lock()
	s.Values[selector] = value
	s.mu.Unlock()
	return s.record("Fill", selector)
}

func (s *Session) Type(ctx context.Context, selector, value string) error {
	s.mu.Lock()
	s.Values[selector] = value
	s.mu.Unlock()
	return s.record("Type", selector)
}

func (s *Session) Press(ctx context.Context, key string) error {
	return s.record("Press", fmt.Sprintf("%q", key))
}

func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	if err := s.record("Text", selector); err != nil {
		return "", err
	}
	text, ok := s.Texts[selector]
	if !ok {
		return "", fmt.Errorf("no text scripted for %q", selector)
	}
	return text, nil
}

func (s *Session) HTML(ctx context.Context, selector string) (string, error) {
	if err := s.record("HTML", selector); err != nil {
		return "", err
	}
	markup, ok := s.Markup[selector]
	if !ok {
		return "", fmt.Errorf("no markup scripted for %q", selector)
	}
	return markup, nil
}

func (s *Session) PageHTML(ctx context.Context) (string, error) {
	if err := s.record("PageHTML", ""); err != nil {
		return "", err
	}
	return s.Page, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.record("Screenshot", ""); err != nil {
		return nil, err
	}
	return []byte("\x89PNG fake"), nil
}

func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	if err := s.record("Evaluate", expression); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	result, ok := s.Results[expression]
	if !ok {
		return fmt.Errorf("no result scripted for %q", expression)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *Session) Pause(ctx context.Context) error {
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	return nil
}
