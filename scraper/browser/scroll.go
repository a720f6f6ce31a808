package browser

import (
	"encoding/json"
	"fmt"
)

// scrollProgress tracks how many result cards each scroll round revealed.
type scrollProgress struct {
	max     int
	visible int
	prevNew int
	rounds  int
}

func newScrollProgress(initial, max int) *scrollProgress {
	return &scrollProgress{max: max, visible: initial, prevNew: -1}
}

// done reports whether scrolling should stop before any round runs.
func (p *scrollProgress) done() bool {
	return p.max > 0 && p.visible >= p.max
}

// observe records the visible count after one round and reports whether
// scrolling should stop: no new cards, fewer than half the previous round's
// new cards, or enough cards visible.
func (p *scrollProgress) observe(visible int) bool {
	p.rounds++
	newItems := visible - p.visible
	if newItems < 0 {
		newItems = 0
	}
	p.visible = visible

	stop := newItems == 0 ||
		(p.prevNew > 0 && newItems*2 < p.prevNew) ||
		p.done()
	p.prevNew = newItems
	return stop
}

// scrollScript scrolls the results feed (or the window) by delta pixels and
// returns how many cards match the first selector that matches anything.
func scrollScript(cardSelectors []string, delta int) string {
	sels, _ := json.Marshal(cardSelectors)
	return fmt.Sprintf(`(function() {
	var feed = document.querySelector('div[role="feed"]');
	if (feed) { feed.scrollBy(0, %d); } else { window.scrollBy(0, %d); }
	var sels = %s;
	for (var i = 0; i < sels.length; i++) {
		var n = document.querySelectorAll(sels[i]).length;
		if (n > 0) return n;
	}
	return 0;
})()`, delta, delta, sels)
}

// countScript returns the visible card count without scrolling.
func countScript(cardSelectors []string) string {
	return scrollScript(cardSelectors, 0)
}
