package archive

import "strings"

func normalizeProxyList(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, p := range raw {
		v := strings.TrimSpace(p)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// proxyForAttempt picks the proxy for a 1-based attempt, cycling the list.
func proxyForAttempt(attempt int, proxies []string) string {
	if attempt <= 0 || len(proxies) == 0 {
		return ""
	}
	return proxies[(attempt-1)%len(proxies)]
}
