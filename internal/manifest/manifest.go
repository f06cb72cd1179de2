// Package manifest parses the per-cluster "divide" file: a table of contents
// that lists destination headers followed by call entries with page numbers.
package manifest

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// UnknownPage sorts a call after every call the manifest lists.
const UnknownPage = 1_000_000_000

const (
	destinationMarker = "Destination"
	callPrefix        = "HORIZON-"
)

var (
	destinationSuffixRe = regexp.MustCompile(`\.+\s*\d+\s*$`)
	callKeyRe           = regexp.MustCompile(`^(HORIZON-[^:]+):`)
)

type Manifest struct {
	text string
}

// Parse wraps raw manifest text. It never fails; unrecognized lines are ignored.
func Parse(text string) *Manifest {
	return &Manifest{text: text}
}

// Load reads the manifest at path. ok is false when the file could not be
// read, in which case the returned manifest is empty.
func Load(path string) (m *Manifest, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Parse(""), false
	}
	return Parse(string(data)), true
}

// Page returns the page number listed after the dot leader of key's entry,
// or UnknownPage.
func (m *Manifest) Page(key string) int {
	if m == nil || m.text == "" || key == "" {
		return UnknownPage
	}
	re, err := regexp.Compile(regexp.QuoteMeta(key) + `:.*?\.+\s*(\d+)`)
	if err != nil {
		return UnknownPage
	}
	match := re.FindStringSubmatch(m.text)
	if match == nil {
		return UnknownPage
	}
	page, err := strconv.Atoi(match[1])
	if err != nil {
		return UnknownPage
	}
	return page
}

// Destinations maps each call key to the destination header it appears under.
// Calls listed before any destination header are left out.
func (m *Manifest) Destinations() map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}

	current := ""
	scanner := bufio.NewScanner(strings.NewReader(m.text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, destinationMarker):
			name := destinationSuffixRe.ReplaceAllString(line, "")
			name = strings.ReplaceAll(name, destinationMarker+" ", "")
			current = strings.TrimSpace(name)
		case strings.HasPrefix(line, callPrefix):
			match := callKeyRe.FindStringSubmatch(line)
			if match != nil && current != "" {
				out[match[1]] = current
			}
		}
	}
	if scanner.Err() != nil {
		return make(map[string]string)
	}
	return out
}
