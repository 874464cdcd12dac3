package frame

import (
	"sync"
)

// PageStyle is the subset of host page style the scroll lock touches.
type PageStyle struct {
	Overflow string
	Position string
}

// HostPage exposes the underlying page's style and scroll position. WKWebView
// renders modal overlays above native scroll handling, so the page behind a
// modal must be frozen while the modal is up.
type HostPage interface {
	Style() PageStyle
	SetStyle(style PageStyle)
	ScrollOffset() (x, y int)
	ScrollTo(x, y int)
}

// ScrollLock is a scoped acquisition of the page's scroll state. Acquire
// saves the current style and offset and freezes the page; Release restores
// exactly what was saved. Release is idempotent and must run on every exit
// path, including abnormal teardown.
type ScrollLock struct {
	page    HostPage
	saved   PageStyle
	savedX  int
	savedY  int
	release sync.Once
}

// AcquireScrollLock freezes the page and records its pre-lock state.
func AcquireScrollLock(page HostPage) *ScrollLock {
	l := &ScrollLock{page: page}
	l.saved = page.Style()
	l.savedX, l.savedY = page.ScrollOffset()
	page.SetStyle(PageStyle{Overflow: "hidden", Position: "fixed"})
	return l
}

// Release restores the saved style and scroll offset.
func (l *ScrollLock) Release() {
	l.release.Do(func() {
		l.page.SetStyle(l.saved)
		l.page.ScrollTo(l.savedX, l.savedY)
	})
}
