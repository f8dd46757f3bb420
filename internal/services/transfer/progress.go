package transfer

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// Progress is one parsed progress event. Total and Speed are zero when
// the tool's output does not carry them.
type Progress struct {
	Downloaded int64
	Total      int64
	Speed      int64
}

// scanProgressLines splits on carriage returns as well as newlines;
// both tools redraw progress with bare \r.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseProgress(tool Tool, line string) (Progress, bool) {
	if tool == ToolCurl {
		return parseCurlProgress(line)
	}
	return parseWgetProgress(line)
}

// wget dot:mega lines look like
//
//	3100K .......... .......... .......... 12% 2.10M 3m2s
//
// with commas instead of dots for skipped blocks on resume.
var wgetDotRegex = regexp.MustCompile(`^\s*(\d+)K[ .,]+(\d+)%\s+([\d.]+[KMG]?)`)

func parseWgetProgress(line string) (Progress, bool) {
	m := wgetDotRegex.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	kilobytes, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Progress{}, false
	}
	return Progress{
		Downloaded: kilobytes * 1024,
		Speed:      parseHumanSize(m[3]),
	}, true
}

// curl's progress meter rows carry twelve columns:
//
//	% Total % Received % Xferd Average-Dload Average-Upload Time-Total Time-Spent Time-Left Current-Speed
//
// Header and blank lines are filtered by requiring a numeric first field.
func parseCurlProgress(line string) (Progress, bool) {
	fields := strings.Fields(line)
	if len(fields) != 12 {
		return Progress{}, false
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return Progress{}, false
	}
	return Progress{
		Downloaded: parseHumanSize(fields[3]),
		Total:      parseHumanSize(fields[1]),
		Speed:      parseHumanSize(fields[11]),
	}, true
}

var humanSizeRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?)([kKMGT]?)$`)

// parseHumanSize reads the tools' abbreviated byte counts ("334M",
// "1.4G", "11.2M", "512k", "0")
func parseHumanSize(s string) int64 {
	m := humanSizeRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		value *= 1024
	case "M":
		value *= 1024 * 1024
	case "G":
		value *= 1024 * 1024 * 1024
	case "T":
		value *= 1024 * 1024 * 1024 * 1024
	}
	return int64(value)
}
