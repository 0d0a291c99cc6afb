// Package surface is the open/close policy of the assistant panel: the
// authentication gate, outside-click dismissal and the actions that are only
// allowed while the panel is showing.
package surface

import (
	"context"
	"errors"
	"sync"

	log "log/slog"

	"carevox/internal/backend"
	"carevox/internal/cart"
	"carevox/internal/session"
)

const LoginRoute = "/login"

var (
	ErrClosed          = errors.New("surface: panel is closed")
	ErrUnauthenticated = errors.New("surface: sign in required")
)

type Point struct {
	X, Y int
}

// Rect is half-open: X <= x < X+W.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

type Layout struct {
	Panel   Rect
	Trigger Rect
}

type AuthStatus interface {
	IsAuthenticated() bool
}

type Navigator interface {
	Navigate(route string)
}

type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Conversation is the part of the session the panel drives.
type Conversation interface {
	Submit(text string, src backend.InputType) bool
	ToggleVoiceMode() bool
	ToggleListening() error
	StopSpeaking()
}

type Surface struct {
	conv Conversation
	auth AuthStatus
	nav  Navigator
	cart cart.Cart

	mu     sync.Mutex
	open   bool
	layout Layout
}

func New(conv Conversation, auth AuthStatus, nav Navigator, c cart.Cart) *Surface {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Surface{conv: conv, auth: auth, nav: nav, cart: c}
}

func (s *Surface) SetLayout(l Layout) {
	s.mu.Lock()
	s.layout = l
	s.mu.Unlock()
}

func (s *Surface) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Open shows the panel, or redirects to the login route when the user is not
// signed in.
func (s *Surface) Open() error {
	if s.auth == nil || !s.auth.IsAuthenticated() {
		log.Info("Open redirected to login")
		s.nav.Navigate(LoginRoute)
		return ErrUnauthenticated
	}

	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return nil
}

// Close hides the panel and silences any reply being spoken. Voice mode and
// the message log are left as they are.
func (s *Surface) Close() {
	s.mu.Lock()
	was := s.open
	s.open = false
	s.mu.Unlock()

	if was {
		s.conv.StopSpeaking()
	}
}

func (s *Surface) Toggle() (bool, error) {
	if s.IsOpen() {
		s.Close()
		return false, nil
	}
	if err := s.Open(); err != nil {
		return false, err
	}
	return true, nil
}

// PointerDown closes the panel for presses outside both the panel and the
// trigger. Presses on the trigger are left to Toggle.
func (s *Surface) PointerDown(p Point) {
	s.mu.Lock()
	outside := s.open && !s.layout.Panel.Contains(p) && !s.layout.Trigger.Contains(p)
	s.mu.Unlock()

	if outside {
		s.Close()
	}
}

// usable reports why panel actions are refused: the panel is closed, or the
// user signed out after opening it.
func (s *Surface) usable() error {
	if !s.IsOpen() {
		return ErrClosed
	}
	if s.auth == nil || !s.auth.IsAuthenticated() {
		return ErrUnauthenticated
	}
	return nil
}

func (s *Surface) Submit(text string, src backend.InputType) (bool, error) {
	if err := s.usable(); err != nil {
		return false, err
	}
	return s.conv.Submit(text, src), nil
}

func (s *Surface) ToggleVoiceMode() (bool, error) {
	if err := s.usable(); err != nil {
		return false, err
	}
	return s.conv.ToggleVoiceMode(), nil
}

func (s *Surface) ToggleListening() error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.conv.ToggleListening()
}

// StopSpeaking is the mute control. A closed panel is already silent.
func (s *Surface) StopSpeaking() error {
	if err := s.usable(); err != nil {
		return err
	}
	s.conv.StopSpeaking()
	return nil
}

func (s *Surface) AddToCart(ctx context.Context, p session.ProductSuggestion) (cart.Item, error) {
	if err := s.usable(); err != nil {
		return cart.Item{}, err
	}
	if s.cart == nil {
		return cart.Item{}, errors.New("surface: no cart")
	}

	item := cart.ItemFrom(p)
	if err := s.cart.Add(ctx, item, 1); err != nil {
		return cart.Item{}, err
	}
	log.Info("Added to cart", "item", item.ID)
	return item, nil
}
