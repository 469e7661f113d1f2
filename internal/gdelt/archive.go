// Package gdelt holds the domain model for the GDELT translation feed:
// manifest parsing, archive typing, and pipeline results.
package gdelt

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ArchiveInfo describes one archive listed in the lastupdate manifest.
type ArchiveInfo struct {
	// FileName is the URL tail, used verbatim as the archive identity key.
	FileName string
	// URL is the full download location.
	URL string
	// Hash is the publisher-asserted MD5 of the archive, lowercase hex.
	Hash string
	// Size is the archive size in bytes as reported by the manifest.
	Size int64
}

// Result is the outcome of one archive pipeline run.
type Result struct {
	Success       bool
	Archive       ArchiveInfo
	ExtractedURLs []string
	ErrorMessage  string
}

// SuccessResult builds a successful pipeline result.
func SuccessResult(archive ArchiveInfo, urls []string) Result {
	return Result{Success: true, Archive: archive, ExtractedURLs: urls}
}

// FailureResult builds a failed pipeline result.
func FailureResult(archive ArchiveInfo, errMsg string) Result {
	return Result{Success: false, Archive: archive, ErrorMessage: errMsg}
}

// ArchiveType classifies the archives this collector consumes.
type ArchiveType int

const (
	// TranslationExport is the 15-minute translated events archive.
	TranslationExport ArchiveType = iota
	// TranslationMentions is the 15-minute translated mentions archive.
	TranslationMentions
)

// ErrUnknownArchiveType is returned when a file name matches no
// supported archive pattern.
var ErrUnknownArchiveType = errors.New("unknown archive type")

var archivePatterns = map[ArchiveType]*regexp.Regexp{
	TranslationExport:   regexp.MustCompile(`translation\.export\.CSV\.zip$`),
	TranslationMentions: regexp.MustCompile(`translation\.mentions\.CSV\.zip$`),
}

// String returns the archive type name.
func (t ArchiveType) String() string {
	switch t {
	case TranslationExport:
		return "translation-export"
	case TranslationMentions:
		return "translation-mentions"
	default:
		return "unknown"
	}
}

// TypeOf determines the archive type from a file name or URL.
func TypeOf(name string) (ArchiveType, error) {
	for t, p := range archivePatterns {
		if p.MatchString(name) {
			return t, nil
		}
	}
	return 0, ErrUnknownArchiveType
}

// IsSupported reports whether the URL names an archive type this
// collector processes.
func IsSupported(url string) bool {
	_, err := TypeOf(url)
	return err == nil
}

// ParseManifest parses the lastupdate manifest body. Each line has the
// form "<sizeBytes> <md5Hex> <url>", whitespace separated. Malformed
// lines are skipped and counted.
func ParseManifest(body string) (archives []ArchiveInfo, malformed int) {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		info, ok := parseManifestLine(line)
		if !ok {
			malformed++
			continue
		}
		archives = append(archives, info)
	}
	return archives, malformed
}

func parseManifestLine(line string) (ArchiveInfo, bool) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return ArchiveInfo{}, false
	}

	size, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ArchiveInfo{}, false
	}

	url := parts[2]
	fileName := url[strings.LastIndex(url, "/")+1:]
	if fileName == "" {
		return ArchiveInfo{}, false
	}

	return ArchiveInfo{
		FileName: fileName,
		URL:      url,
		Hash:     strings.ToLower(parts[1]),
		Size:     size,
	}, true
}
