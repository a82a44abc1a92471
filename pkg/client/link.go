package client

import (
	"regexp"
	"strings"
)

var linkPattern = regexp.MustCompile(`<(\S+)>; rel="(\S+)"`)

// parseLinks returns the URLs of a Link header by relation.
func parseLinks(headers []string) map[string]string {
	links := make(map[string]string)
	for _, m := range linkPattern.FindAllStringSubmatch(strings.Join(headers, ", "), -1) {
		links[m[2]] = m[1]
	}
	return links
}
