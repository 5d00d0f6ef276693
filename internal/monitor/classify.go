package monitor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rigstead/berth/internal/util"
)

// stageRules maps log markers to stages, most advanced stage first. The
// first matching rule wins, so an excerpt containing both the provisioning
// and the ready marker classifies as READY.
var stageRules = []struct {
	pattern *regexp.Regexp
	stage   Stage
}{
	{regexp.MustCompile(`To see the GUI go to:`), StageReady},
	{regexp.MustCompile(`Provisioning complete!`), StageStartingApp},
	{regexp.MustCompile(`Downloading.*model\(s\) to`), StageDownloading},
	{regexp.MustCompile(`Provisioning container`), StageProvisioning},
}

// errorMarkers match lines that mean provisioning has failed. They preempt
// every stage rule.
var errorMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)provisioning (?:failed|error)`),
	regexp.MustCompile(`Traceback \(most recent call last\)`),
	regexp.MustCompile(`(?i)cuda (?:error|out of memory)`),
	regexp.MustCompile(`(?i)torch\.cuda\.outofmemoryerror`),
	regexp.MustCompile(`(?i)no space left on device`),
	regexp.MustCompile(`(?i)^(?:error|fatal)[:!]`),
	regexp.MustCompile(`(?i)\bfailed to (?:download|install|clone|start|provision)\b`),
}

// benignMarkers match known noisy lines that must never trip the error
// rules. The receive buffer warning appears in every container that runs
// quic-based tooling.
var benignMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)failed to sufficiently increase receive buffer size`),
	regexp.MustCompile(`(?i)udp buffer sizes`),
}

// Classification is the outcome of classifying one log excerpt.
type Classification struct {
	// Stage is the most advanced stage matched. Valid only when Matched.
	Stage Stage
	// Matched is false when no rule matched; the caller keeps its
	// previously observed stage.
	Matched bool
	// Failed reports that an error marker preempted the stage rules.
	// Stage is StageError when set.
	Failed bool
	// ErrorLine is the first offending line, trimmed, when Failed.
	ErrorLine string
}

// Classify maps a log excerpt to a lifecycle stage. It is a pure function
// of its input: no I/O, no state. ANSI escapes are stripped before matching
// since provisioning tools color their output.
func Classify(text string) Classification {
	clean := util.StripAnsi(text)

	for _, line := range strings.Split(clean, "\n") {
		if errLine, ok := matchErrorLine(line); ok {
			return Classification{Stage: StageError, Matched: true, Failed: true, ErrorLine: errLine}
		}
	}

	for _, rule := range stageRules {
		if rule.pattern.MatchString(clean) {
			return Classification{Stage: rule.stage, Matched: true}
		}
	}

	return Classification{}
}

func matchErrorLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	for _, benign := range benignMarkers {
		if benign.MatchString(trimmed) {
			return "", false
		}
	}
	for _, marker := range errorMarkers {
		if marker.MatchString(trimmed) {
			return trimmed, true
		}
	}
	return "", false
}

// DownloadProgress summarizes model download state parsed from the log.
// It is transient reporting data, never persisted.
type DownloadProgress struct {
	// Completed counts finished downloads ("✓ Downloaded to:" lines).
	Completed int
	// Announced sums the file counts from "Downloading N model(s) to" lines.
	Announced int
	// Bytes is the transferred size from the most recent progress line,
	// zero when the log has not printed one.
	Bytes int64
	// Speed is the most recent reported transfer rate, verbatim.
	Speed string
}

var (
	announceRe = regexp.MustCompile(`Downloading\s+(\d+)\s+model\(s\) to`)
	sizeRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(B|KB|KiB|MB|MiB|GB|GiB|TB|TiB)\b`)
	speedRe    = regexp.MustCompile(`(\d+(?:\.\d+)?\s*[KMGT]i?B/s)`)
)

// ExtractProgress parses download progress out of a log excerpt,
// independently of stage classification. The second return is false when
// the excerpt carries no progress signal at all.
func ExtractProgress(text string) (DownloadProgress, bool) {
	var p DownloadProgress
	for _, line := range strings.Split(util.StripAnsi(text), "\n") {
		switch {
		case strings.Contains(line, "✓ Downloaded to:"):
			p.Completed++
		case announceRe.MatchString(line):
			m := announceRe.FindStringSubmatch(line)
			if n, err := strconv.Atoi(m[1]); err == nil {
				p.Announced += n
			}
		case strings.Contains(line, "Progress:"):
			if m := sizeRe.FindStringSubmatch(line); m != nil {
				p.Bytes = parseByteSize(m[1], m[2])
			}
		case strings.Contains(line, "Speed:"):
			if m := speedRe.FindStringSubmatch(line); m != nil {
				p.Speed = m[1]
			}
		}
	}
	ok := p.Completed > 0 || p.Announced > 0 || p.Bytes > 0 || p.Speed != ""
	return p, ok
}

var urlRe = regexp.MustCompile(`https?://\S+`)

// ExtractReadyURL pulls the GUI URL off the ready marker line, or returns
// the empty string when the excerpt has none.
func ExtractReadyURL(text string) string {
	for _, line := range strings.Split(util.StripAnsi(text), "\n") {
		if !strings.Contains(line, "To see the GUI go to:") {
			continue
		}
		if url := urlRe.FindString(line); url != "" {
			return strings.TrimRight(url, ".,;)")
		}
	}
	return ""
}

func parseByteSize(num, unit string) int64 {
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	mult, ok := map[string]float64{
		"B":   1,
		"KB":  1e3,
		"MB":  1e6,
		"GB":  1e9,
		"TB":  1e12,
		"KiB": 1 << 10,
		"MiB": 1 << 20,
		"GiB": 1 << 30,
		"TiB": 1 << 40,
	}[unit]
	if !ok {
		return 0
	}
	return int64(f * mult)
}
