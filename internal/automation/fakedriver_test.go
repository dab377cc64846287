// File: internal/automation/fakedriver_test.go
package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/tokensmith/internal/browser"
)

// fakeDriver is a scripted in-memory Driver. Tests mutate its fields (or do
// so from the onClick hook) to simulate page transitions.
type fakeDriver struct {
	mu sync.Mutex

	url      string
	pageText string
	elements map[string]browser.Element
	texts    map[string]string

	// urlSequence, when non-empty, feeds successive CurrentURL calls before
	// falling back to url.
	urlSequence []string

	pageTextErr error
	urlErr      error

	filled       map[string]string
	clicked      []string
	enterPresses int
	closeCalls   int

	onClick func(selector string)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		elements: make(map[string]browser.Element),
		texts:    make(map[string]string),
		filled:   make(map[string]string),
	}
}

var _ browser.Driver = (*fakeDriver)(nil)

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	return nil
}

func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.urlErr != nil {
		return "", f.urlErr
	}
	if len(f.urlSequence) > 0 {
		next := f.urlSequence[0]
		f.urlSequence = f.urlSequence[1:]
		return next, nil
	}
	return f.url, nil
}

func (f *fakeDriver) PageText(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageTextErr != nil {
		return "", f.pageTextErr
	}
	return f.pageText, nil
}

func (f *fakeDriver) Query(ctx context.Context, selector string) (browser.Element, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, ok := f.elements[selector]
	return el, ok, nil
}

func (f *fakeDriver) ReadText(ctx context.Context, selector string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[selector]
	return text, ok, nil
}

func (f *fakeDriver) Fill(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.elements[selector]; !ok {
		return fmt.Errorf("fill: no element for %q", selector)
	}
	f.filled[selector] = value
	return nil
}

func (f *fakeDriver) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	if _, ok := f.elements[selector]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("click: no element for %q", selector)
	}
	f.clicked = append(f.clicked, selector)
	hook := f.onClick
	f.mu.Unlock()
	if hook != nil {
		hook(selector)
	}
	return nil
}

func (f *fakeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el, ok := f.elements[selector]; ok && el.Visible {
		return nil
	}
	return fmt.Errorf("wait: %q never became visible", selector)
}

func (f *fakeDriver) SendEnter(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enterPresses++
	return nil
}

func (f *fakeDriver) Sleep(ctx context.Context, d time.Duration) error {
	// Settle delays collapse to a context check so tests stay fast.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

// setElement registers a visible, enabled element.
func (f *fakeDriver) setElement(selector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[selector] = browser.Element{Visible: true, Enabled: true}
}

func (f *fakeDriver) removeElement(selector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.elements, selector)
}

func (f *fakeDriver) setPage(url, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	f.pageText = text
}

func (f *fakeDriver) clickedSelectors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicked...)
}
