package model

import (
	"fmt"
	"strings"
)

// IDFromHref extracts the entity id from a bridge-assigned href such as
// /device/12, /zone/3 or /area/5/status: the final numeric path segment.
func IDFromHref(href string) (string, error) {
	var id string
	for _, segment := range strings.Split(href, "/") {
		if segment == "" {
			continue
		}
		if isDigits(segment) {
			id = segment
		}
	}
	if id == "" {
		return "", fmt.Errorf("no id in href %q", href)
	}
	return id, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
