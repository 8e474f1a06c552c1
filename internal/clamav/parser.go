package clamav

import (
	"bufio"
	"regexp"
	"strings"
)

// clamscan exit statuses.
const (
	exitClean    = 0
	exitInfected = 1
)

var engineVersionPattern = regexp.MustCompile(`ClamAV (\d+\.\d+\.\d+)(?:/(\d+))?`)

// parseThreats collects the signature names of "<path>: <name> FOUND" lines.
func parseThreats(output []byte) []string {
	var threats []string
	sc := bufio.NewScanner(strings.NewReader(string(output)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasSuffix(line, " FOUND") {
			continue
		}
		i := strings.LastIndex(line, ": ")
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(strings.TrimSuffix(line[i+2:], " FOUND"))
		if name != "" {
			threats = append(threats, name)
		}
	}
	return threats
}

// parseEngine extracts engine and signature database versions from
// `clamscan --version` output such as
// "ClamAV 1.5.1/27805/Mon Oct 27 09:50:30 2025".
func parseEngine(output string) Engine {
	m := engineVersionPattern.FindStringSubmatch(output)
	if m == nil {
		return Engine{Version: "unknown"}
	}
	return Engine{Version: m[1], Database: m[2]}
}
