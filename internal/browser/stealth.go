package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// createPage opens a blank page on b, patched with go-rod/stealth when
// requested. Back offices behind bot screens reject plain headless pages.
func createPage(b *rod.Browser, useStealth bool) (*rod.Page, error) {
	if useStealth {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{URL: ""})
}
