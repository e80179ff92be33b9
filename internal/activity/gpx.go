package activity

import (
	"encoding/xml"
	"fmt"
	"time"
)

// gpxDoc is the subset of GPX 1.1 we emit: one track, one segment.
type gpxDoc struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Xmlns   string   `xml:"xmlns,attr"`
	Meta    *gpxMeta `xml:"metadata,omitempty"`
	Track   gpxTrack `xml:"trk"`
}

type gpxMeta struct {
	Time string `xml:"time,omitempty"`
}

type gpxTrack struct {
	Name    string     `xml:"name,omitempty"`
	Type    string     `xml:"type,omitempty"`
	Segment gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Ele  float64 `xml:"ele,omitempty"`
	Time string  `xml:"time,omitempty"`
}

// RenderGPX serialises a track as a GPX 1.1 document.
//
// Parameters:
//   - track: Decoded track; Points may be empty (indoor activity), which
//     still yields a valid document with an empty segment
//   - name: Track name shown by GPX viewers
//
// Returns:
//   - []byte: UTF-8 XML including the declaration
//   - error: Marshalling failure
func RenderGPX(track *Track, name string) ([]byte, error) {
	doc := gpxDoc{
		Version: "1.1",
		Creator: "garminconnect-webapi",
		Xmlns:   "http://www.topografix.com/GPX/1/1",
		Track: gpxTrack{
			Name: name,
			Type: track.Sport,
		},
	}
	if !track.StartTime.IsZero() {
		doc.Meta = &gpxMeta{Time: track.StartTime.UTC().Format(time.RFC3339)}
	}

	doc.Track.Segment.Points = make([]gpxPoint, 0, len(track.Points))
	for _, pt := range track.Points {
		gp := gpxPoint{Lat: pt.Lat, Lon: pt.Lon, Ele: pt.Elevation}
		if !pt.Time.IsZero() {
			gp.Time = pt.Time.UTC().Format(time.RFC3339)
		}
		doc.Track.Segment.Points = append(doc.Track.Segment.Points, gp)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling gpx: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
