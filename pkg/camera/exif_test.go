package camera

import (
	"bytes"
	"testing"
	"time"

	"github.com/video-system/go-camera-hal/pkg/params"
)

func findEntry(entries []ExifEntry, tag ExifTag) (ExifEntry, bool) {
	for _, e := range entries {
		if e.Tag == tag {
			return e, true
		}
	}
	return ExifEntry{}, false
}

func TestBuildExifWithoutGPS(t *testing.T) {
	p := params.New()
	p.SetFloat(params.KeyFocalLength, 3.53)
	p.Set(params.KeyISO, "ISO400")
	p.Set(params.KeyFlashMode, "auto")

	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.Local)
	table := buildExif(p, now)
	if table.len() != 5 {
		t.Fatalf("%d entries, want 5", table.len())
	}

	b, err := table.encode()
	if err != nil {
		t.Fatal(err)
	}
	entries, err := DecodeExif(b)
	if err != nil {
		t.Fatal(err)
	}
	dt, ok := findEntry(entries, ExifDateTimeOriginal)
	if !ok || string(dt.ASCII) != "2024:03:09 14:05:06\x00" {
		t.Errorf("date time %q", dt.ASCII)
	}
	focal, _ := findEntry(entries, ExifFocalLength)
	if len(focal.Rationals) != 1 || focal.Rationals[0] != (Rational{353, 100}) {
		t.Errorf("focal length %+v", focal.Rationals)
	}
	iso, _ := findEntry(entries, ExifISOSpeedRating)
	if iso.Short == nil || *iso.Short != 400 {
		t.Errorf("iso %v", iso.Short)
	}
	flash, ok := findEntry(entries, ExifFlash)
	if !ok || flash.Short == nil || *flash.Short != 0x18 {
		t.Errorf("flash %v", flash.Short)
	}
}

func TestFlashValue(t *testing.T) {
	tests := []struct {
		mode string
		want uint16
	}{
		{"off", 0x10},
		{"auto", 0x18},
		{"on", 0x09},
		{"torch", 0x09},
		{"", 0x20},
	}
	for _, tt := range tests {
		if got := flashValue(tt.mode); got != tt.want {
			t.Errorf("flash-mode %q: 0x%x, want 0x%x", tt.mode, got, tt.want)
		}
	}
}

func TestBuildExifGPS(t *testing.T) {
	p := params.New()
	p.Set(params.KeyGpsLatitude, "-33.8568")
	p.Set(params.KeyGpsLongitude, "151.2153")
	p.Set(params.KeyGpsAltitude, "-12.5")
	p.Set(params.KeyGpsTimestamp, "1199145600")
	p.Set(params.KeyGpsProcessingMethod, "GPS")
	p.Set(params.KeyExifDateTime, "2008:01:01 00:00:00")

	table := buildExif(p, time.Now())
	if table.len() != MaxExifEntries {
		t.Fatalf("%d entries, want %d", table.len(), MaxExifEntries)
	}
	if got := p.Get(params.KeyGpsLatitudeRef); got != "S" {
		t.Errorf("latitude ref %q", got)
	}
	if got := p.Get(params.KeyGpsLongitudeRef); got != "E" {
		t.Errorf("longitude ref %q", got)
	}
	if got := p.Get(params.KeyGpsAltitudeRef); got != "1" {
		t.Errorf("altitude ref %q", got)
	}

	entries := table.entries
	lat, _ := findEntry(entries, ExifGPSLatitude)
	if len(lat.Rationals) != 3 || lat.Rationals[0] != (Rational{33, 1}) || lat.Rationals[1] != (Rational{51, 1}) {
		t.Errorf("latitude %+v", lat.Rationals)
	}
	alt, _ := findEntry(entries, ExifGPSAltitude)
	if len(alt.Rationals) != 1 || alt.Rationals[0] != (Rational{12500, 1000}) {
		t.Errorf("altitude %+v", alt.Rationals)
	}
	date, _ := findEntry(entries, ExifGPSDatestamp)
	if string(date.ASCII) != "2008:01:01\x00" {
		t.Errorf("gps date %q", date.ASCII)
	}
	method, _ := findEntry(entries, ExifGPSProcessingMethod)
	if !bytes.HasPrefix(method.ASCII, exifASCIIPrefix) || !bytes.HasSuffix(method.ASCII, []byte("GPS\x00")) {
		t.Errorf("processing method %q", method.ASCII)
	}
}

func TestExifTableIsBounded(t *testing.T) {
	var table exifTable
	for i := 0; i < MaxExifEntries; i++ {
		if !table.add(ExifEntry{Tag: ExifFocalLength}) {
			t.Fatalf("entry %d rejected", i)
		}
	}
	if table.add(ExifEntry{Tag: ExifFocalLength}) {
		t.Error("table grew past its limit")
	}
	table.reset()
	if table.len() != 0 {
		t.Errorf("%d entries after reset", table.len())
	}
}

func TestGPSProcessingMethodTruncated(t *testing.T) {
	p := params.New()
	p.Set(params.KeyGpsProcessingMethod, string(bytes.Repeat([]byte("x"), 300)))
	table := buildExif(p, time.Now())
	method, ok := findEntry(table.entries, ExifGPSProcessingMethod)
	if !ok {
		t.Fatal("no processing method")
	}
	if want := len(exifASCIIPrefix) + gpsProcessingMethodLimit + 1; len(method.ASCII) != want {
		t.Errorf("processing method %d bytes, want %d", len(method.ASCII), want)
	}
}
