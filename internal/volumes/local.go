package volumes

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/uplan"
)

// Config holds the buffers applied around the nominal trajectory.
type Config struct {
	TSEH   float64 // horizontal total system error, m
	TSEV   float64 // vertical total system error, m
	AlphaH float64 // horizontal/vertical ratio above which a segment is level
	AlphaV float64 // vertical/horizontal ratio above which a segment is a climb

	TimeBuffer        time.Duration // added before and after each segment
	MinClearance      float64       // lowest allowed volume floor, m AGL
	CompressionFactor int           // keep every Nth waypoint
}

// DefaultConfig returns the standard buffers.
func DefaultConfig() Config {
	return Config{
		TSEH:              15,
		TSEV:              10,
		AlphaH:            7,
		AlphaV:            1,
		TimeBuffer:        5 * time.Second,
		MinClearance:      10,
		CompressionFactor: 20,
	}
}

// Waypoint is one trajectory sample. Time is seconds since takeoff and Alt
// is meters above ground.
type Waypoint struct {
	Time float64
	Lat  float64
	Lon  float64
	Alt  float64
}

// PlanGetter reads a plan. storage.Storage satisfies it.
type PlanGetter interface {
	GetPlan(ctx context.Context, id string) (*types.FlightPlan, error)
}

// LocalGenerator derives volumes from a plan's trajectory CSV.
type LocalGenerator struct {
	Plans        PlanGetter
	Trajectories TrajectorySource
	Config       Config
	Log          *slog.Logger

	now func() time.Time
}

var _ Generator = (*LocalGenerator)(nil)

// NewLocalGenerator creates a generator with the default buffers.
func NewLocalGenerator(plans PlanGetter, src TrajectorySource, log *slog.Logger) *LocalGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &LocalGenerator{
		Plans:        plans,
		Trajectories: src,
		Config:       DefaultConfig(),
		Log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds a complete document for planID. Fields the generator
// cannot know are left as placeholders for the operator to fill in.
func (g *LocalGenerator) Generate(ctx context.Context, planID string) (Generated, error) {
	plan, err := g.Plans.GetPlan(ctx, planID)
	if err != nil {
		return Generated{}, err
	}
	if !plan.HasTrajectory() {
		return Generated{}, fmt.Errorf("plan %s: %w", planID, ErrNoTrajectory)
	}
	if plan.ScheduledAt == nil {
		return Generated{}, fmt.Errorf("plan %s has no schedule", planID)
	}

	rc, err := g.Trajectories.Open(ctx, *plan.TrajectoryRef)
	if err != nil {
		return Generated{}, err
	}
	defer rc.Close()

	waypoints, err := ParseTrajectory(rc)
	if err != nil {
		return Generated{}, err
	}
	if len(waypoints) == 0 {
		return Generated{}, fmt.Errorf("no waypoints in trajectory %s", *plan.TrajectoryRef)
	}
	reduced := ReduceWaypoints(waypoints, g.Config.CompressionFactor)
	if len(reduced) < 2 {
		return Generated{}, fmt.Errorf("trajectory %s has too few waypoints", *plan.TrajectoryRef)
	}

	vols := BuildVolumes(reduced, *plan.ScheduledAt, g.Config)
	g.Log.Debug("generated volumes",
		"plan_id", planID,
		"waypoints", len(waypoints),
		"reduced", len(reduced),
		"volumes", len(vols))

	info := uplan.ParseTrajectoryName(path.Base(*plan.TrajectoryRef))
	doc := g.draft(plan, info, waypoints[0], waypoints[len(waypoints)-1])
	doc.OperationVolumes = vols
	return Generated{Document: doc, VolumesGenerated: len(vols)}, nil
}

func (g *LocalGenerator) draft(plan *types.FlightPlan, info uplan.TrajectoryName, takeoff, landing Waypoint) *uplan.Document {
	category := uplan.CategorySchema(info.Category)
	perf, ok := uplan.LookupPerformance(info.Category, info.Airframe)
	if !ok {
		g.Log.Debug("no performance entry", "category", info.Category, "airframe", info.Airframe)
	}
	now := g.now()
	tbd := uplan.Placeholder

	return &uplan.Document{
		IDPlan:               info.FlightID,
		NamePlan:             plan.Name,
		OperatorID:           tbd,
		DataOwnerIdentifier:  uplan.DataIdentifier{SAC: tbd, SIC: tbd},
		DataSourceIdentifier: uplan.DataIdentifier{SAC: tbd, SIC: tbd},
		ContactDetails: uplan.ContactDetails{
			FirstName: tbd,
			LastName:  tbd,
			Phones:    []string{tbd},
			Emails:    []string{uplan.PlaceholderEmail},
		},
		FlightDetails: uplan.FlightDetails{
			Mode:     uplan.FlightMode(category),
			Category: category,
		},
		UAS: uplan.UAS{
			RegistrationNumber: tbd,
			SerialNumber:       tbd,
			FlightCharacteristics: uplan.FlightCharacteristics{
				MTOM:         perf.MTOM,
				MaxSpeed:     perf.VMax,
				Connectivity: "LTE",
				IDTechnology: "NRID",
			},
			GeneralCharacteristics: uplan.GeneralCharacteristics{
				Brand:           tbd,
				Model:           tbd,
				TypeCertificate: tbd,
				UASType:         uplan.AirframeSchema(info.Airframe),
				UASClass:        "NONE",
				UASDimension:    "LT_1",
			},
		},
		TakeoffLocation: uplan.NewPoint(takeoff.Lat, takeoff.Lon, takeoff.Alt),
		LandingLocation: uplan.NewPoint(landing.Lat, landing.Lon, landing.Alt),
		GCSLocation:     uplan.NewPoint(0, 0, 0),
		State:           uplan.StateSent,
		CreationTime:    &now,
		UpdateTime:      &now,
	}
}

// ParseTrajectory reads SimTime,Lat,Lon,Alt[,...] rows. Lines starting with
// "//" and the header row are skipped, and so are rows that do not parse.
func ParseTrajectory(r io.Reader) ([]Waypoint, error) {
	cr := csv.NewReader(r)
	cr.Comment = '/'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		waypoints     []Waypoint
		headerSkipped bool
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read trajectory: %w", err)
		}
		if !headerSkipped {
			line := strings.Join(rec, ",")
			if strings.Contains(line, "SimTime") || strings.Contains(line, "Lat") {
				headerSkipped = true
				continue
			}
		}
		if len(rec) < 4 {
			continue
		}
		var vals [4]float64
		ok := true
		for i := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		waypoints = append(waypoints, Waypoint{Time: vals[0], Lat: vals[1], Lon: vals[2], Alt: vals[3]})
	}
	return waypoints, nil
}

// ReduceWaypoints keeps every factor-th waypoint starting from the second,
// and always the last one. Trajectories of two points or fewer are returned
// unchanged.
func ReduceWaypoints(waypoints []Waypoint, factor int) []Waypoint {
	if len(waypoints) <= 2 {
		return waypoints
	}
	if factor < 1 {
		factor = 1
	}
	var reduced []Waypoint
	for i := 1; i < len(waypoints); i += factor {
		reduced = append(reduced, waypoints[i])
	}
	last := waypoints[len(waypoints)-1]
	if reduced[len(reduced)-1].Time != last.Time {
		reduced = append(reduced, last)
	}
	return reduced
}

// BuildVolumes creates one oriented-rectangle volume per consecutive pair of
// waypoints. start anchors the waypoint times.
func BuildVolumes(wps []Waypoint, start time.Time, cfg Config) []uplan.OperationVolume {
	if len(wps) < 2 {
		return nil
	}
	vols := make([]uplan.OperationVolume, 0, len(wps)-1)
	startUnix := float64(start.Unix())
	tbuf := cfg.TimeBuffer.Seconds()

	for i := 0; i < len(wps)-1; i++ {
		wp1, wp2 := wps[i], wps[i+1]

		horizontal := distance(wp1.Lat, wp1.Lon, wp2.Lat, wp2.Lon)
		az := azimuth(wp1.Lat, wp1.Lon, wp2.Lat, wp2.Lon)
		vertical := math.Abs(wp2.Alt - wp1.Alt)
		midLat := (wp1.Lat + wp2.Lat) / 2
		midLon := (wp1.Lon + wp2.Lon) / 2
		midAlt := (wp1.Alt + wp2.Alt) / 2

		var along, cross, vbuf float64
		switch {
		case horizontal > cfg.AlphaH*vertical:
			along = horizontal/2 + cfg.TSEH
			cross = cfg.TSEH
			vbuf = cfg.TSEV
		case vertical > cfg.AlphaV*horizontal:
			along = cfg.TSEH
			cross = cfg.TSEH
			vbuf = vertical/2 + cfg.TSEV
		default:
			along = horizontal/2 + cfg.TSEH
			cross = cfg.TSEH
			vbuf = vertical/2 + cfg.TSEV
		}

		ring := orientedRectangle(midLat, midLon, az, along, cross)
		floor := math.Max(midAlt-vbuf, cfg.MinClearance)

		vols = append(vols, uplan.OperationVolume{
			Ordinal: i,
			Geometry: uplan.Geometry{
				Type:        "Polygon",
				Coordinates: [][][2]float64{ring},
				BBox:        bbox(ring),
			},
			TimeBegin:   time.Unix(int64(startUnix+wp1.Time-tbuf), 0).UTC(),
			TimeEnd:     time.Unix(int64(startUnix+wp2.Time+tbuf), 0).UTC(),
			MinAltitude: uplan.Altitude{Value: floor, UOM: "M", Reference: "AGL"},
			MaxAltitude: uplan.Altitude{Value: midAlt + vbuf, UOM: "M", Reference: "AGL"},
		})
	}
	return vols
}
