package utils

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/chromedp/chromedp"
)

// userAgents is the identity pool sessions pick from.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
}

// defaultLanguages is the navigator.languages list, most preferred first.
var defaultLanguages = []string{"fr-FR", "fr", "en-US", "en"}

// Identity is the browser fingerprint a session presents.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
	Languages      []string
	Width          int64
	Height         int64
}

// RandomUserAgent picks one user agent from the pool.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// NewIdentity builds a fresh randomized identity for one session.
func NewIdentity() Identity {
	return Identity{
		UserAgent:      RandomUserAgent(),
		AcceptLanguage: acceptLanguage(defaultLanguages),
		Languages:      append([]string(nil), defaultLanguages...),
		Width:          1366 + int64(rand.Intn(4))*100,
		Height:         768 + int64(rand.Intn(3))*100,
	}
}

// StealthOpts returns browser launch options that hide automation.
func StealthOpts(headless bool, id Identity, chromeBin string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("lang", "fr-FR"),
		chromedp.WindowSize(int(id.Width), int(id.Height)),
		chromedp.UserAgent(id.UserAgent),
	}
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}
	return opts
}

// acceptLanguage renders languages as an Accept-Language header with
// decreasing q-values: "fr-FR,fr;q=0.9,en-US;q=0.8".
func acceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 10 - i
		if q < 1 {
			q = 1
		}
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", lang, q))
	}
	return strings.Join(parts, ",")
}

// HideAutomationScript patches the globals automation frameworks leave
// behind and reports the identity's languages. It must run before any page
// script.
func (id Identity) HideAutomationScript() string {
	langs, _ := json.Marshal(id.Languages)
	return strings.Replace(hideAutomationTemplate, "%LANGUAGES%", string(langs), 1)
}

const hideAutomationTemplate = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => %LANGUAGES% });
window.chrome = window.chrome || { runtime: {} };
for (const key of Object.keys(window)) {
	if (/^cdc_|^\$cdc_|^__webdriver|^__selenium|^_Selenium_IDE_Recorder/.test(key)) {
		try { delete window[key]; } catch (e) {}
	}
}
`
