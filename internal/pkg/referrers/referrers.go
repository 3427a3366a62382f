// Package referrers turns raw Referer values into traffic source names.
package referrers

import (
	"net/url"
	"strings"
)

// Direct labels visits that arrived without a referer.
const Direct = "Direct"

type source struct {
	name    string
	domains []string
}

var sources = []source{
	// Search
	{"Google", []string{"google.com", "google.co.uk", "google.de", "google.fr", "google.es", "google.it", "google.nl", "google.ca", "google.com.au", "google.co.jp", "google.co.in", "google.com.br", "google.com.tr", "google.ae"}},
	{"Bing", []string{"bing.com"}},
	{"DuckDuckGo", []string{"duckduckgo.com"}},
	{"Yahoo", []string{"yahoo.com", "search.yahoo.com"}},
	{"Baidu", []string{"baidu.com"}},
	{"Yandex", []string{"yandex.ru", "yandex.com"}},
	{"Naver", []string{"naver.com"}},
	{"Ecosia", []string{"ecosia.org"}},

	// B2B marketplaces and trade directories
	{"Alibaba", []string{"alibaba.com", "1688.com"}},
	{"Made-in-China", []string{"made-in-china.com"}},
	{"Global Sources", []string{"globalsources.com"}},
	{"TradeKey", []string{"tradekey.com"}},
	{"IndiaMART", []string{"indiamart.com"}},
	{"Europages", []string{"europages.com", "europages.co.uk"}},
	{"Kompass", []string{"kompass.com"}},
	{"ThomasNet", []string{"thomasnet.com"}},

	// Social
	{"LinkedIn", []string{"linkedin.com", "lnkd.in"}},
	{"Facebook", []string{"facebook.com", "fb.com", "l.facebook.com", "lm.facebook.com"}},
	{"Instagram", []string{"instagram.com", "l.instagram.com"}},
	{"X/Twitter", []string{"x.com", "twitter.com", "t.co"}},
	{"YouTube", []string{"youtube.com", "youtu.be"}},
	{"TikTok", []string{"tiktok.com"}},
	{"Pinterest", []string{"pinterest.com"}},
	{"Reddit", []string{"reddit.com", "old.reddit.com"}},
	{"WhatsApp", []string{"whatsapp.com", "wa.me"}},
	{"Telegram", []string{"telegram.org", "t.me"}},
	{"WeChat", []string{"wechat.com", "weixin.qq.com"}},

	// Mail
	{"Gmail", []string{"mail.google.com"}},
	{"Outlook", []string{"outlook.live.com", "outlook.office.com", "outlook.office365.com"}},
	{"Yahoo Mail", []string{"mail.yahoo.com"}},
	{"Proton Mail", []string{"mail.proton.me", "protonmail.com"}},

	// Shorteners
	{"Bitly", []string{"bit.ly"}},
	{"TinyURL", []string{"tinyurl.com"}},
}

var byDomain = func() map[string]string {
	m := make(map[string]string)
	for _, s := range sources {
		for _, d := range s.domains {
			m[d] = s.name
		}
	}
	return m
}()

// Source returns the traffic source of a raw Referer value: Direct when it
// is empty, a known source name when the host matches one, otherwise the
// bare host.
func Source(referer string) string {
	host := Host(referer)
	if host == "" {
		return Direct
	}
	return FriendlyName(host)
}

// Host extracts the lower-cased hostname from a referer, tolerating values
// sent without a scheme.
func Host(referer string) string {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return ""
	}
	if !strings.Contains(referer, "://") {
		referer = "http://" + referer
	}
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// FriendlyName maps a hostname to a source name. The most specific known
// parent domain wins; unknown hosts come back without their www. prefix.
func FriendlyName(hostname string) string {
	hostname = strings.TrimPrefix(strings.ToLower(hostname), "www.")

	for h := hostname; h != ""; {
		if name, ok := byDomain[h]; ok {
			return name
		}
		_, rest, found := strings.Cut(h, ".")
		if !found {
			break
		}
		h = rest
	}
	return hostname
}
