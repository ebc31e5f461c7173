package metadata

import "testing"

func TestCleanTitle(t *testing.T) {
	tests := map[string]string{
		"Dune.Part.Two.2024.2160p.BluRay.x265":         "dune part two",
		"The.Matrix.1999.1080p.BluRay.x264-GROUP":      "the matrix",
		"[YTS] Oppenheimer (2023) 1080p WEBRip":        "oppenheimer",
		"Breaking.Bad.S05E14.720p.HDTV.x264":           "breaking bad",
		"Planet_Earth_II_S01_2160p_UHD_BluRay":         "planet earth ii",
		"1917.2019.2160p.WEB-DL.x265":                  "1917",
		"Amélie.2001.1080p.BluRay":                     "amelie",
		"  Some   Movie   1080p   ":                    "some movie",
		"Blade.Runner.2049.2017.1080p.BluRay.x265-GRP": "blade runner 2049",
		"Wonder.Woman.1984.2020.2160p.WEB-DL":          "wonder woman 1984",
		"Space.1999.S01E01.720p.HDTV":                  "space 1999",
		"Dune.2021":                                    "dune",
		"1080p.x264":                                   "",
	}
	for input, want := range tests {
		if got := CleanTitle(input); got != want {
			t.Errorf("CleanTitle(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseReleaseYearAndResolution(t *testing.T) {
	info := ParseRelease("Dune.Part.Two.2024.2160p.BluRay.x265")
	if info.Year != 2024 {
		t.Fatalf("expected year 2024, got %d", info.Year)
	}
	if info.Resolution != "2160p" {
		t.Fatalf("expected 2160p, got %q", info.Resolution)
	}
	if info.Series {
		t.Fatal("movie release should not be flagged as series")
	}
}

func TestParseReleaseSeries(t *testing.T) {
	info := ParseRelease("Breaking.Bad.S05E14.720p.HDTV.x264-GROUP")
	if !info.Series {
		t.Fatal("expected series hint for SxxEyy release")
	}
	if info.Resolution != "720p" {
		t.Fatalf("expected 720p, got %q", info.Resolution)
	}
}

func TestParseReleaseKeepsTitleYears(t *testing.T) {
	tests := map[string]int{
		"Blade.Runner.2049.2017.1080p.BluRay.x265-GRP": 2017,
		"Wonder.Woman.1984.2020.2160p.WEB-DL":          2020,
		"1917.2019.2160p.WEB-DL.x265":                  2019,
		"Space.1999.S01E01.720p.HDTV":                  0,
	}
	for input, want := range tests {
		if got := ParseRelease(input).Year; got != want {
			t.Errorf("ParseRelease(%q).Year = %d, want %d", input, got, want)
		}
	}
}
