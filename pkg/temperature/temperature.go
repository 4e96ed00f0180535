// Package temperature provides the temperature field seen by the assembly
// driver.
package temperature

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var ErrEmptyProfile = errors.New("temperature profile has no points")

// Handler returns the temperature in kelvin at a position (nm) and time (s).
type Handler interface {
	Temperature(position [3]float64, time float64) float64
}

// Constant is a uniform, steady temperature.
type Constant float64

func (c Constant) Temperature([3]float64, float64) float64 { return float64(c) }

// Gradient varies linearly with depth: Surface + Slope*x.
type Gradient struct {
	Surface float64 // K at x = 0
	Slope   float64 // K/nm
}

func (g Gradient) Temperature(position [3]float64, _ float64) float64 {
	return g.Surface + g.Slope*position[0]
}

// Point is one entry of a time profile.
type Point struct {
	Time, Value float64
}

// Profile interpolates linearly between time points and holds the end values
// outside the table.
type Profile struct {
	points []Point
}

// NewProfile sorts points by time.
func NewProfile(points []Point) (*Profile, error) {
	if len(points) == 0 {
		return nil, ErrEmptyProfile
	}
	p := &Profile{points: append([]Point(nil), points...)}
	sort.SliceStable(p.points, func(i, j int) bool { return p.points[i].Time < p.points[j].Time })
	return p, nil
}

// At evaluates the profile at t.
func (p *Profile) At(t float64) float64 {
	pts := p.points
	if t <= pts[0].Time {
		return pts[0].Value
	}
	last := pts[len(pts)-1]
	if t >= last.Time {
		return last.Value
	}
	k := sort.Search(len(pts), func(i int) bool { return pts[i].Time > t })
	a, b := pts[k-1], pts[k]
	if b.Time == a.Time {
		return b.Value
	}
	return a.Value + (b.Value-a.Value)*(t-a.Time)/(b.Time-a.Time)
}

func (p *Profile) Points() []Point { return append([]Point(nil), p.points...) }

// Temperature makes a Profile a Handler that ignores position.
func (p *Profile) Temperature(_ [3]float64, t float64) float64 { return p.At(t) }

// ReadProfile parses "time value" pairs, one per line. Blank lines and lines
// starting with '#' are skipped.
func ReadProfile(r io.Reader) (*Profile, error) {
	var points []Point
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("profile line %d: want 2 columns, got %d", line, len(fields))
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("profile line %d: time: %w", line, err)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("profile line %d: value: %w", line, err)
		}
		points = append(points, Point{Time: t, Value: v})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewProfile(points)
}

// LoadProfile reads a profile file.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := ReadProfile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
