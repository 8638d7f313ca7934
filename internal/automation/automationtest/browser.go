package automationtest

import (
	"context"
	"errors"
	"sync"
	"wa-blaster/internal/ports"
	"wa-blaster/internal/selectors"
)

// Browser hands out fake pages. NewPage creates pages with the catalog
// unless Factory is set.
type Browser struct {
	Factory func(url string) *Page
	// LaunchErr fails every call that needs a running browser.
	LaunchErr error

	catalog *selectors.Catalog

	mu       sync.Mutex
	pages    []*Page
	ready    bool
	newPages int
}

var _ ports.Browser = (*Browser)(nil)

func NewBrowser(catalog *selectors.Catalog, pages ...*Page) *Browser {
	return &Browser{
		catalog: catalog,
		pages:   pages,
		ready:   true,
	}
}

func (b *Browser) Launch(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.LaunchErr != nil {
		return b.LaunchErr
	}

	b.ready = true

	return nil
}

func (b *Browser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false

	return nil
}

func (b *Browser) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *Browser) Pages(context.Context) ([]ports.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return nil, errors.New("browser is not running")
	}

	out := make([]ports.Page, 0, len(b.pages))
	for _, p := range b.pages {
		if !p.IsClosed() {
			out = append(out, p)
		}
	}

	return out, nil
}

func (b *Browser) NewPage(ctx context.Context, url string) (ports.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return nil, errors.New("browser is not running")
	}

	var page *Page
	if b.Factory != nil {
		page = b.Factory(url)
	} else {
		page = NewPage(b.catalog)
	}

	page.SetURL(url)
	b.pages = append(b.pages, page)
	b.newPages++

	return page, nil
}

// Opened returns how many pages NewPage created.
func (b *Browser) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newPages
}
