package location

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"plantguard/internal/logging"
	"plantguard/internal/types"
)

// watchCommand asks gpsd to stream JSON reports.
const watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"

// GPSD reads fixes from a gpsd daemon over its JSON protocol.
type GPSD struct {
	Address string
	Dialer  net.Dialer

	now func() time.Time
}

// NewGPSD creates a gpsd provider for addr (host:port).
func NewGPSD(addr string) *GPSD {
	return &GPSD{
		Address: addr,
		Dialer:  net.Dialer{Timeout: 5 * time.Second},
		now:     time.Now,
	}
}

// tpv is the subset of a gpsd TPV report used here.
type tpv struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Time  string  `json:"time"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Epx   float64 `json:"epx"`
	Epy   float64 `json:"epy"`
}

// Updates connects, enables watch mode and streams 2D/3D fixes spaced at
// least req.MinInterval apart. gpsd sets its own report rate, so
// req.Interval only applies when no MinInterval is given.
// The connection is closed when ctx ends.
func (g *GPSD) Updates(ctx context.Context, req Request) (<-chan types.Fix, error) {
	conn, err := g.Dialer.DialContext(ctx, "tcp", g.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gpsd at %s: %w", g.Address, err)
	}
	if _, err := io.WriteString(conn, watchCommand); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable gpsd watch: %w", err)
	}
	logging.LocationDebug("gpsd watch enabled on %s", g.Address)

	spacing := req.spacing()
	out := make(chan types.Fix)
	go func() {
		defer close(out)
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		var last time.Time
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fix, ok := g.parse(scanner.Bytes())
			if !ok {
				continue
			}
			now := g.clock()
			if spacing > 0 && !last.IsZero() && now.Sub(last) < spacing {
				continue
			}
			last = now

			select {
			case out <- fix:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logging.LocationWarn("gpsd stream ended: %v", err)
		}
	}()
	return out, nil
}

func (g *GPSD) clock() time.Time {
	if g.now == nil {
		return time.Now()
	}
	return g.now()
}

// parse decodes one report line. Only TPV reports with a 2D or 3D fix count.
func (g *GPSD) parse(line []byte) (types.Fix, bool) {
	var r tpv
	if err := json.Unmarshal(line, &r); err != nil {
		logging.LocationDebug("skipping unparseable gpsd line: %v", err)
		return types.Fix{}, false
	}
	if r.Class != "TPV" || r.Mode < 2 {
		return types.Fix{}, false
	}

	ts := g.clock()
	if r.Time != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, r.Time); err == nil {
			ts = parsed
		}
	}
	return types.Fix{
		Latitude:  r.Lat,
		Longitude: r.Lon,
		Accuracy:  math.Hypot(r.Epx, r.Epy),
		Time:      ts,
	}, true
}
