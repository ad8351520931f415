package tmuxdriver

import "regexp"

var (
	sessionNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	paneIdRe      = regexp.MustCompile(`^%\d+$`)
	invalidPathRe = regexp.MustCompile("[;&|`$(){}\\[\\]<>\\\\'\"!#*?\n\r]")
)

func validateSessionName(name string) error {
	if name == "" || !sessionNameRe.MatchString(name) {
		return newErr(KindInvalidName, "session name must match ^[A-Za-z0-9_-]+$ and be non-empty")
	}
	return nil
}

func validatePath(path string) error {
	if path == "" || invalidPathRe.MatchString(path) {
		return newErr(KindInvalidPath, "path must be non-empty and free of shell metacharacters")
	}
	return nil
}

func validatePaneId(paneId string) error {
	if !paneIdRe.MatchString(paneId) {
		return newErr(KindInvalidPaneId, "pane id must match ^%\\d+$")
	}
	return nil
}
