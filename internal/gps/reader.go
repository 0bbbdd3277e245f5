package gps

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// Reader turns an NMEA byte stream into fixes. GGA sentences update the
// pending fix; every RMC sentence completes one.
type Reader struct {
	r       *bufio.Reader
	current Fix
}

// NewReader reads NMEA sentences from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next blocks until the next RMC sentence and returns the combined fix.
// Malformed and unknown sentences are skipped.
func (g *Reader) Next() (Fix, error) {
	for {
		line, err := g.r.ReadString('\n')
		if err != nil && line == "" {
			return Fix{}, fmt.Errorf("gps: read: %w", err)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			if err != nil {
				return Fix{}, fmt.Errorf("gps: read: %w", err)
			}
			continue
		}

		sentence, perr := nmea.Parse(line)
		if perr != nil {
			if err != nil {
				return Fix{}, fmt.Errorf("gps: read: %w", err)
			}
			continue
		}

		switch m := sentence.(type) {
		case nmea.GGA:
			g.current.FixQuality = m.FixQuality
			g.current.Satellites = m.NumSatellites
			g.current.AltitudeM = m.Altitude
			g.current.HDOP = m.HDOP
		case nmea.RMC:
			g.current.Time = m.Time.String()
			g.current.Date = m.Date.String()
			g.current.Latitude = m.Latitude
			g.current.Longitude = m.Longitude
			g.current.SpeedKnots = m.Speed
			g.current.CourseDeg = m.Course
			g.current.Validity = string(m.Validity)
			return g.current, nil
		}

		if err != nil {
			return Fix{}, fmt.Errorf("gps: read: %w", err)
		}
	}
}
