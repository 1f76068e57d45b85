// Package challenge recognizes bot challenges that block a vendor login so
// failures can be reported precisely. It does not solve them.
package challenge

import (
	"context"
	"fmt"

	"github.com/jmylchreest/side-api/internal/browser"
)

// Type represents the type of challenge detected on a page.
type Type string

const (
	// TypeNone indicates no challenge was detected.
	TypeNone Type = "none"
	// TypeCloudflareTurnstile indicates a Cloudflare Turnstile widget.
	TypeCloudflareTurnstile Type = "cloudflare_turnstile"
	// TypeCloudflareInterstitial indicates a Cloudflare interstitial page.
	TypeCloudflareInterstitial Type = "cloudflare_interstitial"
	// TypeHCaptcha indicates an hCaptcha widget.
	TypeHCaptcha Type = "hcaptcha"
	// TypeReCaptcha indicates a reCAPTCHA widget.
	TypeReCaptcha Type = "recaptcha"
)

// probe maps a challenge to the selectors that reveal it.
type probe struct {
	typ       Type
	selectors []string
}

var probes = []probe{
	{TypeCloudflareInterstitial, []string{`#challenge-running`, `#challenge-form`, `#cf-challenge-running`}},
	{TypeCloudflareTurnstile, []string{`.cf-turnstile`, `iframe[src*="challenges.cloudflare.com"]`}},
	{TypeHCaptcha, []string{`.h-captcha`, `iframe[src*="hcaptcha.com"]`}},
	{TypeReCaptcha, []string{`.g-recaptcha`, `iframe[src*="recaptcha"]`}},
}

// Detection describes a challenge found on a page.
type Detection struct {
	Type     Type   `json:"type"`
	Selector string `json:"selector,omitempty"`
	PageURL  string `json:"pageUrl"`
}

// Found reports whether a challenge was detected.
func (d *Detection) Found() bool {
	return d != nil && d.Type != TypeNone
}

// Error wraps a detection so it can travel with a login failure.
type Error struct {
	Detection *Detection
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s challenge at %s", e.Detection.Type, e.Detection.PageURL)
}

// Detector detects challenges on pages.
type Detector struct{}

// NewDetector creates a new challenge detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the first challenge present on page, or a detection of
// TypeNone.
func (d *Detector) Detect(ctx context.Context, page browser.Page) (*Detection, error) {
	detection := &Detection{Type: TypeNone, PageURL: page.URL()}
	for _, p := range probes {
		for _, sel := range p.selectors {
			present, err := page.Exists(ctx, sel)
			if err != nil {
				return nil, err
			}
			if present {
				detection.Type = p.typ
				detection.Selector = sel
				return detection, nil
			}
		}
	}
	return detection, nil
}
