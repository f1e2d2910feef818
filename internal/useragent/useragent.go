// Package useragent implements the minimal browser classification the
// leak state machine needs (spec §3: "browser: one of chrome | firefox |
// safari | all, determined once at creation from User-Agent"). No package
// in this module's dependency surface parses User-Agent strings, and the
// distinction this tool actually needs — three substring checks — does
// not warrant pulling one in.
package useragent

import "strings"

// Browser identifies which of the three supported rendering engines (or
// the catch-all "all") a User-Agent string belongs to.
type Browser string

const (
	Chrome  Browser = "chrome"
	Firefox Browser = "firefox"
	Safari  Browser = "safari"
	All     Browser = "all"
)

// Detect classifies a raw User-Agent header value. Chrome, Edge and other
// Chromium-based browsers advertise "Chrome/" before any "Safari/" token,
// so Chrome is checked before Safari (Firefox, whose token is unambiguous,
// is checked ahead of both); genuine Safari never includes "Chrome/".
func Detect(rawUserAgent string) Browser {
	ua := strings.ToLower(rawUserAgent)
	switch {
	case strings.Contains(ua, "firefox"):
		return Firefox
	case strings.Contains(ua, "chrome"), strings.Contains(ua, "chromium"):
		return Chrome
	case strings.Contains(ua, "safari"):
		return Safari
	default:
		return All
	}
}

// Supported reports whether browser is one of the three engines this tool
// has a dedicated leak strategy for, per spec §4.5 and §6.2's
// browser∈{all,chrome,firefox,safari} enumeration minus "all" itself.
func Supported(b Browser) bool {
	switch b {
	case Chrome, Firefox, Safari:
		return true
	default:
		return false
	}
}
