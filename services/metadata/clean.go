package metadata

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/moistari/rls"
	"github.com/mozillazg/go-unidecode"
)

var (
	reBracketed  = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\{[^}]*\}`)
	reSeparators = regexp.MustCompile(`[._+]+`)
	reYear       = regexp.MustCompile(`^(19|20)\d{2}$`)
	reSeasonTag  = regexp.MustCompile(`^s\d{1,2}(e\d{1,3})?$`)
	reAnyYear    = regexp.MustCompile(`\b(19|20)\d{2}\b`)

	releaseTokens = map[string]struct{}{
		"480p": {}, "576p": {}, "720p": {}, "1080p": {}, "1080i": {}, "2160p": {}, "4320p": {},
		"4k": {}, "8k": {}, "uhd": {}, "hdr": {}, "hdr10": {}, "hdr10+": {}, "dv": {}, "sdr": {},
		"bluray": {}, "blu-ray": {}, "bdrip": {}, "brrip": {}, "webrip": {}, "web-dl": {}, "webdl": {},
		"web": {}, "hdtv": {}, "dvdrip": {}, "hdrip": {}, "remux": {}, "cam": {}, "ts": {},
		"x264": {}, "x265": {}, "h264": {}, "h265": {}, "hevc": {}, "avc": {}, "xvid": {}, "10bit": {},
		"aac": {}, "ac3": {}, "dd5": {}, "ddp5": {}, "eac3": {}, "dts": {}, "truehd": {}, "atmos": {},
		"proper": {}, "repack": {}, "internal": {}, "multi": {}, "dual": {}, "dubbed": {},
		"subbed": {}, "imax": {}, "extended": {}, "unrated": {}, "amzn": {}, "nf": {}, "dsnp": {},
		"hmax": {}, "atvp": {},
	}
)

// CleanTitle turns a scene release name into a search term: lower case, ASCII,
// no bracketed segments and no release tokens. Series names end at the season
// tag; movie names end at the last year before the release tokens, so years
// inside the title ("Blade Runner 2049") survive.
func CleanTitle(raw string) string {
	title, _ := splitRelease(raw)
	return strings.Join(title, " ")
}

// splitRelease returns the title words of raw and the release year that
// ended the title, 0 when there was none.
func splitRelease(raw string) ([]string, int) {
	s := strings.ToLower(unidecode.Unidecode(raw))
	s = reBracketed.ReplaceAllString(s, " ")
	s = reSeparators.ReplaceAllString(s, " ")
	fields := strings.Fields(s)

	stop, season := len(fields), false
	for i := 1; i < len(fields); i++ {
		if reSeasonTag.MatchString(fields[i]) {
			stop, season = i, true
			break
		}
		if isReleaseToken(fields[i]) {
			stop = i
			break
		}
	}
	head := fields[:stop]

	year := 0
	if !season {
		// The first word is always title, e.g. "1917".
		for i := len(head) - 1; i > 0; i-- {
			if reYear.MatchString(head[i]) {
				year, _ = strconv.Atoi(head[i])
				head = head[:i]
				break
			}
		}
	}

	title := make([]string, 0, len(head))
	for _, field := range head {
		if !isReleaseToken(field) {
			title = append(title, field)
		}
	}
	return title, year
}

func isReleaseToken(field string) bool {
	if _, ok := releaseTokens[field]; ok {
		return true
	}
	// Group suffixes glued to a tag, e.g. "x265-rarbg".
	if idx := strings.LastIndex(field, "-"); idx > 0 {
		if _, ok := releaseTokens[field[:idx]]; ok {
			return true
		}
	}
	return false
}

// ReleaseInfo is what the release name tells us before any metadata lookup.
type ReleaseInfo struct {
	Year       int
	Resolution string
	Series     bool
}

// ParseRelease extracts the year, resolution and series hint from a release name.
// A year that belongs to the title is not a release year.
func ParseRelease(raw string) ReleaseInfo {
	r := rls.ParseString(raw)
	title, year := splitRelease(raw)
	info := ReleaseInfo{
		Year:       year,
		Resolution: r.Resolution,
		Series:     r.Type == rls.Series || r.Type == rls.Episode || r.Series > 0,
	}
	if info.Year == 0 {
		info.Year = r.Year
		if info.Year == 0 {
			if m := reAnyYear.FindString(raw); m != "" {
				info.Year, _ = strconv.Atoi(m)
			}
		}
		if info.Year != 0 && slices.Contains(title, strconv.Itoa(info.Year)) {
			info.Year = 0
		}
	}
	if info.Resolution == "" {
		lower := strings.ToLower(raw)
		switch {
		case strings.Contains(lower, "2160p") || strings.Contains(lower, "4k") || strings.Contains(lower, "uhd"):
			info.Resolution = "2160p"
		case strings.Contains(lower, "1080p"):
			info.Resolution = "1080p"
		case strings.Contains(lower, "720p"):
			info.Resolution = "720p"
		}
	}
	return info
}
