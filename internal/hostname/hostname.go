// Package hostname maps gateway hostnames of the form
// <version>.<project>.<owner>.<base domain> to the stack they designate.
//
// DNS labels cannot carry dots or slashes and must not end with a hyphen, so
// each label uses reversible escapes: "/" is "--slash--", a trailing "-" is
// "--hyphen" and "." is "--dot--" ("--dot" at the end of the label).
package hostname

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

const (
	slashToken  = "--slash--"
	hyphenToken = "--hyphen"
	dotToken    = "--dot--"
	dotTrailing = "--dot"
)

var dotPattern = regexp.MustCompile(`--dot(--|$)`)

type InvalidHostnameError struct {
	Hostname string
}

func (e *InvalidHostnameError) Error() string {
	return fmt.Sprintf("invalid hostname %q", e.Hostname)
}

func IsInvalidHostname(err error) bool {
	_, ok := err.(*InvalidHostnameError)
	return ok
}

// Target is what a hostname points at.
type Target struct {
	Owner   string
	Project string
	Version string
}

// ProjectName returns "<owner>/<project>".
func (t Target) ProjectName() string {
	return t.Owner + "/" + t.Project
}

// Decode splits hostname into owner, project and version. A ":port" suffix is
// ignored and the base domain is matched case-insensitively.
func Decode(baseDomain, hostname string) (Target, error) {
	host := hostname
	if h, _, err := net.SplitHostPort(hostname); err == nil {
		host = h
	}

	suffix := "." + baseDomain
	if len(host) <= len(suffix) || !strings.EqualFold(host[len(host)-len(suffix):], suffix) {
		return Target{}, &InvalidHostnameError{hostname}
	}

	labels := strings.Split(host[:len(host)-len(suffix)], ".")
	if len(labels) != 3 {
		return Target{}, &InvalidHostnameError{hostname}
	}
	for _, label := range labels {
		if label == "" {
			return Target{}, &InvalidHostnameError{hostname}
		}
	}

	return Target{
		Owner:   unescape(labels[2]),
		Project: unescape(labels[1]),
		Version: unescape(labels[0]),
	}, nil
}

// Encode is the inverse of Decode.
func Encode(baseDomain string, target Target) string {
	return strings.Join([]string{
		escape(target.Version),
		escape(target.Project),
		escape(target.Owner),
		baseDomain,
	}, ".")
}

// unescape undoes slashes, then the trailing hyphen, then dots. The order
// matters: the dot pattern must only see what the other escapes left behind.
func unescape(label string) string {
	label = strings.ReplaceAll(label, slashToken, "/")
	if strings.HasSuffix(label, hyphenToken) {
		label = strings.TrimSuffix(label, hyphenToken) + "-"
	}
	return dotPattern.ReplaceAllString(label, ".")
}

func escape(segment string) string {
	if strings.HasSuffix(segment, ".") {
		segment = strings.ReplaceAll(strings.TrimSuffix(segment, "."), ".", dotToken) + dotTrailing
	} else {
		segment = strings.ReplaceAll(segment, ".", dotToken)
	}
	if strings.HasSuffix(segment, "-") {
		segment = strings.TrimSuffix(segment, "-") + hyphenToken
	}
	return strings.ReplaceAll(segment, "/", slashToken)
}
