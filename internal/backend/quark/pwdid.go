package quark

import (
	"regexp"
	"strings"
)

var (
	shareURLPattern = regexp.MustCompile(`pan\.quark\.cn/s/([a-zA-Z0-9]+)`)
	barePwdID       = regexp.MustCompile(`^[a-zA-Z0-9]{6,32}$`)
)

// ExtractPwdID returns the share id from a share URL or a bare id.
func ExtractPwdID(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if m := shareURLPattern.FindStringSubmatch(value); m != nil {
		return m[1], true
	}
	if barePwdID.MatchString(value) {
		return value, true
	}
	return "", false
}

// ShareURL returns the public share link for pwdID.
func ShareURL(pwdID string) string {
	return "https://pan.quark.cn/s/" + pwdID
}
