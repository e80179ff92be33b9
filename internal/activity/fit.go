package activity

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/filedef"
	"github.com/muktihari/fit/profile/mesgdef"
)

// zipMagic is the PKZIP local file header signature. Garmin's ORIGINAL
// export wraps the device FIT file in a zip archive.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// DecodeTrack decodes an activity recording into a Track. Accepts either a
// bare FIT file or the zip archive Garmin serves for the ORIGINAL format.
//
// Parameters:
//   - data: FIT bytes or a zip archive containing one FIT file
//
// Returns:
//   - *Track: Session totals plus any GPS samples (Points may be empty for
//     indoor activities)
//   - error: Decode failures, including archives with no FIT entry
func DecodeTrack(data []byte) (*Track, error) {
	fitData, err := unwrapOriginal(data)
	if err != nil {
		return nil, err
	}

	fit, err := decoder.New(bytes.NewReader(fitData)).Decode()
	if err != nil {
		return nil, fmt.Errorf("decoding fit file: %w", err)
	}

	act := filedef.NewActivity(fit.Messages...)

	track := &Track{Points: make([]TrackPoint, 0, len(act.Records))}
	if len(act.Sessions) > 0 {
		applySession(track, act.Sessions[0])
	}

	for _, rec := range act.Records {
		lat := rec.PositionLatDegrees()
		lon := rec.PositionLongDegrees()
		if math.IsNaN(lat) || math.IsNaN(lon) {
			continue
		}

		point := TrackPoint{Lat: lat, Lon: lon, Time: rec.Timestamp}
		if ele := recordElevation(rec); !math.IsNaN(ele) {
			point.Elevation = ele
		}
		if dist := rec.DistanceScaled(); !math.IsNaN(dist) {
			point.DistanceM = dist
		}
		track.Points = append(track.Points, point)
	}

	return track, nil
}

// applySession copies session-level totals onto the track. Invalid values
// decode as NaN and are left at their zero values.
func applySession(track *Track, session *mesgdef.Session) {
	track.Sport = session.Sport.String()
	track.StartTime = session.StartTime
	if d := session.TotalDistanceScaled(); !math.IsNaN(d) {
		track.TotalDistM = d
	}
	if t := session.TotalElapsedTimeScaled(); !math.IsNaN(t) {
		track.TotalTimeS = t
	}
	if session.TotalCalories != math.MaxUint16 {
		track.Calories = session.TotalCalories
	}
}

// recordElevation prefers the enhanced altitude field, present on newer
// devices, over the basic one.
func recordElevation(rec *mesgdef.Record) float64 {
	if ele := rec.EnhancedAltitudeScaled(); !math.IsNaN(ele) {
		return ele
	}
	return rec.AltitudeScaled()
}

// unwrapOriginal extracts the FIT payload from an ORIGINAL-format zip, or
// returns the input unchanged when it is already a bare FIT file.
func unwrapOriginal(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zipMagic) {
		return data, nil
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening activity archive: %w", err)
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s in archive: %w", file.Name, err)
		}
		payload, err := io.ReadAll(rc)
		rc.Close() //nolint:errcheck // read-only archive entry
		if err != nil {
			return nil, fmt.Errorf("reading %s from archive: %w", file.Name, err)
		}
		return payload, nil
	}

	return nil, fmt.Errorf("activity archive contains no files")
}
