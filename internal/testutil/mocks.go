package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cassiomorais/framelink/internal/frame"
	"github.com/cassiomorais/framelink/internal/venmodesktop"
)

// --- Context Client Mock ---

// UpdateCall records one Update invocation.
type UpdateCall struct {
	ID     string
	Status venmodesktop.Status
}

// MockContextClient is a scriptable implementation of
// venmodesktop.ContextClient. Lookups are served from a script of results,
// repeating the last entry once exhausted.
type MockContextClient struct {
	mu sync.Mutex

	CreateFunc func(ctx context.Context) (*venmodesktop.CreateResult, error)
	UpdateFunc func(ctx context.Context, id string, status venmodesktop.Status) error
	LookupFunc func(ctx context.Context, id string) (*venmodesktop.LookupResult, error)

	CreateResult *venmodesktop.CreateResult
	LookupScript []venmodesktop.LookupResult

	createCalls int
	updateCalls []UpdateCall
	lookupCalls int
}

func NewMockContextClient() *MockContextClient {
	return &MockContextClient{}
}

func (m *MockContextClient) Create(ctx context.Context) (*venmodesktop.CreateResult, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx)
	}
	res := *m.CreateResult
	return &res, nil
}

func (m *MockContextClient) Update(ctx context.Context, id string, status venmodesktop.Status) error {
	m.mu.Lock()
	m.updateCalls = append(m.updateCalls, UpdateCall{ID: id, Status: status})
	m.mu.Unlock()
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, status)
	}
	return nil
}

func (m *MockContextClient) Lookup(ctx context.Context, id string) (*venmodesktop.LookupResult, error) {
	m.mu.Lock()
	idx := m.lookupCalls
	m.lookupCalls++
	m.mu.Unlock()
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, id)
	}
	if len(m.LookupScript) == 0 {
		return &venmodesktop.LookupResult{Status: venmodesktop.StatusCreated}, nil
	}
	if idx >= len(m.LookupScript) {
		idx = len(m.LookupScript) - 1
	}
	res := m.LookupScript[idx]
	return &res, nil
}

func (m *MockContextClient) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

func (m *MockContextClient) LookupCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupCalls
}

func (m *MockContextClient) UpdateCalls() []UpdateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UpdateCall, len(m.updateCalls))
	copy(out, m.updateCalls)
	return out
}

// --- GraphQL Executor Mock ---

// ExecutedOp records one Execute invocation.
type ExecutedOp struct {
	OperationName string
	Query         string
	Variables     map[string]any
}

// MockExecutor is a scriptable graphql.Executor.
type MockExecutor struct {
	mu sync.Mutex

	ExecuteFunc func(ctx context.Context, operationName, query string, variables map[string]any) (json.RawMessage, error)

	ops []ExecutedOp
}

func (m *MockExecutor) Execute(ctx context.Context, operationName, query string, variables map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	m.ops = append(m.ops, ExecutedOp{OperationName: operationName, Query: query, Variables: variables})
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, operationName, query, variables)
	}
	return json.RawMessage(`{}`), nil
}

func (m *MockExecutor) Ops() []ExecutedOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutedOp, len(m.ops))
	copy(out, m.ops)
	return out
}

// --- Frame host mocks ---

// MockWindow implements frame.Window with an externally togglable closed
// flag, standing in for a user closing the popup.
type MockWindow struct {
	mu        sync.Mutex
	closed    bool
	focused   int
	navigated []string
}

func (w *MockWindow) Navigate(ctx context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.navigated = append(w.navigated, url)
	return nil
}

func (w *MockWindow) Focus() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused++
	return nil
}

func (w *MockWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *MockWindow) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// SimulateUserClose flips the closed flag as browser chrome would.
func (w *MockWindow) SimulateUserClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *MockWindow) Navigations() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.navigated))
	copy(out, w.navigated)
	return out
}

// MockWindowOpener implements frame.WindowOpener.
type MockWindowOpener struct {
	mu sync.Mutex

	OpenWindowFunc func(ctx context.Context, url string, features frame.WindowFeatures) (frame.Window, error)

	Window   *MockWindow
	opened   []string
	features []frame.WindowFeatures
}

func (o *MockWindowOpener) OpenWindow(ctx context.Context, url string, features frame.WindowFeatures) (frame.Window, error) {
	o.mu.Lock()
	o.opened = append(o.opened, url)
	o.features = append(o.features, features)
	o.mu.Unlock()
	if o.OpenWindowFunc != nil {
		return o.OpenWindowFunc(ctx, url, features)
	}
	if o.Window == nil {
		o.Window = &MockWindow{}
	}
	return o.Window, nil
}

func (o *MockWindowOpener) OpenedURLs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.opened))
	copy(out, o.opened)
	return out
}

func (o *MockWindowOpener) Features() []frame.WindowFeatures {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]frame.WindowFeatures, len(o.features))
	copy(out, o.features)
	return out
}

// MockOverlay implements frame.Overlay.
type MockOverlay struct {
	mu      sync.Mutex
	Shown   bool
	Hidden  bool
	URLs    []string
	ShowErr error
}

func (o *MockOverlay) Show(ctx context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ShowErr != nil {
		return o.ShowErr
	}
	o.Shown = true
	o.URLs = append(o.URLs, url)
	return nil
}

func (o *MockOverlay) SetURL(ctx context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.URLs = append(o.URLs, url)
	return nil
}

func (o *MockOverlay) Hide() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Hidden = true
	return nil
}

// MockHostPage implements frame.HostPage with recorded style and scroll
// state.
type MockHostPage struct {
	mu      sync.Mutex
	style   frame.PageStyle
	x, y    int
	history []frame.PageStyle
}

func NewMockHostPage(style frame.PageStyle, x, y int) *MockHostPage {
	return &MockHostPage{style: style, x: x, y: y}
}

func (p *MockHostPage) Style() frame.PageStyle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.style
}

func (p *MockHostPage) SetStyle(style frame.PageStyle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.style = style
	p.history = append(p.history, style)
}

func (p *MockHostPage) ScrollOffset() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x, p.y
}

func (p *MockHostPage) ScrollTo(x, y int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.x, p.y = x, y
}

// --- Analytics Sink Mock ---

// RecordingSink captures analytics event names.
type RecordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *RecordingSink) Send(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

func (s *RecordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}
