package browser

import (
	"sort"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourcePatterns maps config resource type names to URL patterns.
// Blocking goes through the Network domain rather than request hijacking:
// the Fetch domain used by hijacking conflicts with the response events the
// network capture listens to.
var resourcePatterns = map[string][]string{
	"Image":      {"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.avif", "*.ico"},
	"Font":       {"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot"},
	"Media":      {"*.mp4", "*.webm", "*.mp3", "*.m3u8", "*.ogg"},
	"Stylesheet": {"*.css"},
}

// blockedURLs returns the URL patterns for the named resource types.
// Unknown names are ignored.
func blockedURLs(types []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range types {
		for _, p := range resourcePatterns[name] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// blockResources stops the page from loading the given resource types.
func blockResources(page *rod.Page, types []string) error {
	urls := blockedURLs(types)
	if len(urls) == 0 {
		return nil
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return err
	}
	return proto.NetworkSetBlockedURLs{Urls: urls}.Call(page)
}
