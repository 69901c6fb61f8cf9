package camera

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/video-system/go-camera-hal/pkg/params"
)

// MaxExifEntries caps the Exif table of one picture
const MaxExifEntries = 14

// ExifTag packs the table index in the upper half and the Exif tag number in
// the lower half
type ExifTag uint32

const (
	ExifGPSLatitudeRef      ExifTag = 0x10001
	ExifGPSLatitude         ExifTag = 0x20002
	ExifGPSLongitudeRef     ExifTag = 0x30003
	ExifGPSLongitude        ExifTag = 0x40004
	ExifGPSAltitudeRef      ExifTag = 0x50005
	ExifGPSAltitude         ExifTag = 0x60006
	ExifGPSTimestamp        ExifTag = 0x70007
	ExifGPSProcessingMethod ExifTag = 0x1b001b
	ExifGPSDatestamp        ExifTag = 0x1d001d
	ExifDateTimeOriginal    ExifTag = 0x939003
	ExifDateTimeCreated     ExifTag = 0x949004
	ExifFlash               ExifTag = 0x9f9209
	ExifFocalLength         ExifTag = 0xa0920a
	ExifISOSpeedRating      ExifTag = 0x908827
)

const (
	focalLengthPrecision     = 100
	gpsProcessingMethodLimit = 100
)

// exifASCIIPrefix is the character code header of an Exif UNDEFINED text
var exifASCIIPrefix = []byte{'A', 'S', 'C', 'I', 'I', 0, 0, 0}

// Rational is an Exif RATIONAL
type Rational struct {
	Num   int64 `cbor:"n" json:"n"`
	Denom int64 `cbor:"d" json:"d"`
}

// ExifEntry is one tag of the table. Exactly one value field is set.
type ExifEntry struct {
	Tag       ExifTag    `cbor:"tag" json:"tag"`
	ASCII     []byte     `cbor:"ascii,omitempty" json:"ascii,omitempty"`
	Rationals []Rational `cbor:"rat,omitempty" json:"rat,omitempty"`
	Short     *uint16    `cbor:"short,omitempty" json:"short,omitempty"`
	Byte      *uint8     `cbor:"byte,omitempty" json:"byte,omitempty"`
}

// exifTable accumulates the tags for one picture
type exifTable struct {
	entries []ExifEntry
}

// add appends an entry; a full table drops it and reports false
func (t *exifTable) add(e ExifEntry) bool {
	if len(t.entries) >= MaxExifEntries {
		return false
	}
	t.entries = append(t.entries, e)
	return true
}

func (t *exifTable) reset() {
	t.entries = t.entries[:0]
}

func (t *exifTable) len() int { return len(t.entries) }

func (t *exifTable) encode() ([]byte, error) {
	return cbor.Marshal(t.entries)
}

// DecodeExif parses the Exif blob attached to a compressed image
func DecodeExif(b []byte) ([]ExifEntry, error) {
	var out []ExifEntry
	if err := cbor.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode exif: %w", err)
	}
	return out, nil
}

// buildExif fills the table from the current parameters and writes the derived
// GPS reference keys back into p
func buildExif(p *params.Parameters, now time.Time) *exifTable {
	t := &exifTable{}

	dateTime := p.Get(params.KeyExifDateTime)
	if len(dateTime) > 19 {
		dateTime = dateTime[:19]
	}
	if dateTime == "" {
		dateTime = now.Local().Format("2006:01:02 15:04:05")
	}
	t.add(ExifEntry{Tag: ExifDateTimeOriginal, ASCII: cstring(dateTime)})
	t.add(ExifEntry{Tag: ExifDateTimeCreated, ASCII: cstring(dateTime)})

	focal := int64(math.Round(p.GetFloat(params.KeyFocalLength) * focalLengthPrecision))
	t.add(ExifEntry{Tag: ExifFocalLength, Rationals: []Rational{{focal, focalLengthPrecision}}})

	iso := isoSpeed(p.Get(params.KeyISO))
	t.add(ExifEntry{Tag: ExifISOSpeedRating, Short: &iso})

	flash := flashValue(p.Get(params.KeyFlashMode))
	t.add(ExifEntry{Tag: ExifFlash, Short: &flash})

	if method, ok := p.Lookup(params.KeyGpsProcessingMethod); ok {
		if len(method) > gpsProcessingMethodLimit {
			method = method[:gpsProcessingMethodLimit]
		}
		b := append(append([]byte{}, exifASCIIPrefix...), cstring(method)...)
		t.add(ExifEntry{Tag: ExifGPSProcessingMethod, ASCII: b})
	}

	if s, ok := p.Lookup(params.KeyGpsLatitude); ok {
		v, _ := strconv.ParseFloat(s, 64)
		t.add(ExifEntry{Tag: ExifGPSLatitude, Rationals: gpsCoordinate(v)})
		ref := "N"
		if v < 0 {
			ref = "S"
		}
		p.Set(params.KeyGpsLatitudeRef, ref)
		t.add(ExifEntry{Tag: ExifGPSLatitudeRef, ASCII: cstring(ref)})
	}

	if s, ok := p.Lookup(params.KeyGpsLongitude); ok {
		v, _ := strconv.ParseFloat(s, 64)
		t.add(ExifEntry{Tag: ExifGPSLongitude, Rationals: gpsCoordinate(v)})
		ref := "E"
		if v < 0 {
			ref = "W"
		}
		p.Set(params.KeyGpsLongitudeRef, ref)
		t.add(ExifEntry{Tag: ExifGPSLongitudeRef, ASCII: cstring(ref)})
	}

	if s, ok := p.Lookup(params.KeyGpsAltitude); ok {
		v, _ := strconv.ParseFloat(s, 64)
		var ref uint8
		if v < 0 {
			ref = 1
			v = -v
		}
		t.add(ExifEntry{Tag: ExifGPSAltitude, Rationals: []Rational{{int64(v * 1000), 1000}}})
		t.add(ExifEntry{Tag: ExifGPSAltitudeRef, Byte: &ref})
		p.SetInt(params.KeyGpsAltitudeRef, int(ref))
	}

	if s, ok := p.Lookup(params.KeyGpsTimestamp); ok {
		sec, _ := strconv.ParseInt(s, 10, 64)
		utc := time.Unix(sec, 0).UTC()
		t.add(ExifEntry{Tag: ExifGPSDatestamp, ASCII: cstring(utc.Format("2006:01:02"))})
		t.add(ExifEntry{Tag: ExifGPSTimestamp, Rationals: []Rational{
			{int64(utc.Hour()), 1}, {int64(utc.Minute()), 1}, {int64(utc.Second()), 1},
		}})
	}
	return t
}

// gpsCoordinate splits decimal degrees into degrees, minutes and seconds
func gpsCoordinate(v float64) []Rational {
	deg := math.Abs(v)
	mins := (deg - math.Trunc(deg)) * 60
	secs := (mins - math.Trunc(mins)) * 60
	return []Rational{
		{int64(deg), 1},
		{int64(mins), 1},
		{int64(secs * 10000), 10000},
	}
}

func isoSpeed(name string) uint16 {
	v, ok := params.ISOModes.Lookup(name)
	if !ok || v < 0 || v >= len(params.ISOSpeeds) {
		return 0
	}
	return uint16(params.ISOSpeeds[v])
}

func cstring(s string) []byte {
	return append([]byte(s), 0)
}

// flashValue maps flash-mode onto the Exif Flash bit field. Bit 0 is the
// fired flag; bits 3 and 4 carry the mode.
func flashValue(mode string) uint16 {
	switch mode {
	case "off":
		return 0x10
	case "auto":
		return 0x18
	case "on", "torch":
		return 0x09
	}
	return 0x20 // no flash function
}
