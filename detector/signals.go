package detector

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/offersync/models"
)

// Detector derives Signals from a page using the session vocabulary.
type Detector struct {
	accountPaths  []string
	logout        []string
	keywords      []string
	greeting      *regexp.Regexp
	cookieMarkers []string
}

// New compiles a Detector.
func New(v models.SessionVocabulary) (*Detector, error) {
	d := &Detector{
		accountPaths:  v.AccountPaths,
		logout:        lowerAll(v.LogoutPhrases),
		keywords:      lowerAll(v.Keywords),
		cookieMarkers: lowerAll(v.CookieMarkers),
	}
	if v.Greeting != "" {
		re, err := regexp.Compile(v.Greeting)
		if err != nil {
			return nil, fmt.Errorf("greeting pattern: %w", err)
		}
		d.greeting = re
	}
	return d, nil
}

// SignalsFromHTML inspects a page and its cookie names. Cookies may be given
// as "name" or "name=value".
func (d *Detector) SignalsFromHTML(rawHTML string, cookies []string) (Signals, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return Signals{}, fmt.Errorf("parse page: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var s Signals
	if d.hasAccountLink(doc) {
		s.Strong = append(s.Strong, SignalAccountLink)
	}
	if d.hasLogoutControl(doc) {
		s.Strong = append(s.Strong, SignalLogoutControl)
	}

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	lower := strings.ToLower(text)
	for _, kw := range d.keywords {
		if kw != "" && strings.Contains(lower, kw) {
			s.Weak = append(s.Weak, signalKeywordPrefix+kw)
		}
	}
	if d.greeting != nil && d.greeting.MatchString(text) {
		s.Weak = append(s.Weak, SignalGreeting)
	}

	s.Cookie = d.hasAuthCookie(cookies)
	return s, nil
}

func (d *Detector) hasAccountLink(doc *goquery.Document) bool {
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		for _, p := range d.accountPaths {
			if p != "" && strings.HasPrefix(u.Path, p) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func (d *Detector) hasLogoutControl(doc *goquery.Document) bool {
	found := false
	doc.Find(`a, button, [role="button"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(el.Text()))
		if aria, ok := el.Attr("aria-label"); ok && label == "" {
			label = strings.ToLower(aria)
		}
		href, _ := el.Attr("href")
		href = strings.ToLower(href)
		for _, p := range d.logout {
			if p == "" {
				continue
			}
			if strings.Contains(label, p) || strings.Contains(href, strings.ReplaceAll(p, " ", "")) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func (d *Detector) hasAuthCookie(cookies []string) bool {
	for _, c := range cookies {
		name, _, _ := strings.Cut(c, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		for _, m := range d.cookieMarkers {
			if m != "" && strings.Contains(name, m) {
				return true
			}
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
