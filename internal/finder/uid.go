package finder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/v0xg/pagehelper/internal/dom"
)

// UID returns the element's identifier, assigning one on first use.
//
// An element keeps the identifier it was first given. Otherwise its DOM id is
// used, and failing that the identifier is built from the element's
// tag:nth-child path below the body plus a creation timestamp. The identifier
// is stored on the node and in the finder's registry for Lookup.
func (f *Finder) UID(ctx context.Context, el dom.Element) (string, error) {
	uid, err := el.UID(ctx)
	if err != nil {
		return "", fmt.Errorf("read uid: %w", err)
	}
	if uid != "" {
		f.remember(uid, el)
		return uid, nil
	}

	info, err := el.Describe(ctx)
	if err != nil {
		return "", fmt.Errorf("describe element: %w", err)
	}
	if info.ID != "" {
		uid = info.ID
	} else {
		path, err := el.Path(ctx)
		if err != nil {
			return "", fmt.Errorf("element path: %w", err)
		}
		uid = f.pathUID(path)
	}

	if err := el.SetUID(ctx, uid); err != nil {
		return "", fmt.Errorf("attach uid: %w", err)
	}
	f.remember(uid, el)
	return uid, nil
}

// Lookup returns the element previously assigned uid while it is still
// attached. Detached elements are forgotten.
func (f *Finder) Lookup(ctx context.Context, uid string) (dom.Element, bool) {
	f.mu.Lock()
	el, ok := f.assigned[uid]
	f.mu.Unlock()
	if !ok {
		return nil, false
	}

	connected, err := el.Connected(ctx)
	if err == nil && connected {
		return el, true
	}
	f.mu.Lock()
	if f.assigned[uid] == el {
		delete(f.assigned, uid)
	}
	f.mu.Unlock()
	return nil, false
}

func (f *Finder) remember(uid string, el dom.Element) {
	f.mu.Lock()
	f.assigned[uid] = el
	f.mu.Unlock()
}

func (f *Finder) pathUID(path []dom.PathStep) string {
	parts := make([]string, len(path))
	for i, step := range path {
		parts[i] = step.Tag + ":nth-child(" + strconv.Itoa(step.Index+1) + ")"
	}
	return UIDPrefix + strings.Join(parts, ">") + "_" + strconv.FormatInt(f.now().UnixNano(), 10)
}
