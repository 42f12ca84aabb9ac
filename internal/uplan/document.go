// Package uplan models the U-Plan authorization document submitted to the
// Flight Authorization Service, and checks it for completeness.
//
// The field layout follows the U-Plan schema: identifiers, contact details,
// flight details, aircraft (UAS) characteristics, locations and the
// generated operation volumes.
package uplan

import (
	"encoding/json"
	"time"
)

// Placeholder is the value generators write into fields the operator still
// has to fill in. Validation treats it as missing.
const Placeholder = "TBD"

// PlaceholderEmail is the placeholder used for contact emails.
const PlaceholderEmail = "tbd@example.com"

// State values for Document.State
const (
	StateSent     = "SENT"
	StateDraft    = "DRAFT"
	StateAccepted = "ACCEPTED"
)

// Document is a U-Plan.
type Document struct {
	IDPlan               int               `json:"idplan,omitempty"`
	NamePlan             string            `json:"nameplan,omitempty"`
	OperatorID           string            `json:"operatorId"`
	DataOwnerIdentifier  DataIdentifier    `json:"dataOwnerIdentifier"`
	DataSourceIdentifier DataIdentifier    `json:"dataSourceIdentifier"`
	ContactDetails       ContactDetails    `json:"contactDetails"`
	FlightDetails        FlightDetails     `json:"flightDetails"`
	UAS                  UAS               `json:"uas"`
	TakeoffLocation      *Location         `json:"takeoffLocation,omitempty"`
	LandingLocation      *Location         `json:"landingLocation,omitempty"`
	GCSLocation          *Location         `json:"gcsLocation,omitempty"`
	OperationVolumes     []OperationVolume `json:"operationVolumes"`
	State                string            `json:"state,omitempty"`
	CreationTime         *time.Time        `json:"creationTime,omitempty"`
	UpdateTime           *time.Time        `json:"updateTime,omitempty"`
}

// DataIdentifier is a SAC/SIC pair.
type DataIdentifier struct {
	SAC string `json:"sac"`
	SIC string `json:"sic"`
}

// ContactDetails identifies the remote pilot or operator contact.
type ContactDetails struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Phones    []string `json:"phones"`
	Emails    []string `json:"emails"`
}

// FlightDetails describes the kind of operation.
type FlightDetails struct {
	Mode             string `json:"mode"`     // VLOS or BVLOS
	Category         string `json:"category"` // OPENA1, SAIL_I-II, ...
	SpecialOperation string `json:"specialOperation"`
	PrivateFlight    bool   `json:"privateFlight"`
}

// UAS holds aircraft identity and characteristics.
type UAS struct {
	RegistrationNumber     string                 `json:"registrationNumber"`
	SerialNumber           string                 `json:"serialNumber"`
	FlightCharacteristics  FlightCharacteristics  `json:"flightCharacteristics"`
	GeneralCharacteristics GeneralCharacteristics `json:"generalCharacteristics"`
}

// FlightCharacteristics are the aircraft performance figures.
type FlightCharacteristics struct {
	MTOM          float64 `json:"uasMTOM"`     // kg
	MaxSpeed      float64 `json:"uasMaxSpeed"` // m/s
	Connectivity  string  `json:"Connectivity"`
	IDTechnology  string  `json:"idTechnology"`
	MaxFlightTime float64 `json:"maxFlightTime"`
}

// GeneralCharacteristics describe the airframe.
type GeneralCharacteristics struct {
	Brand           string `json:"brand"`
	Model           string `json:"model"`
	TypeCertificate string `json:"typeCertificate"`
	UASType         string `json:"uasType"`
	UASClass        string `json:"uasClass"`
	UASDimension    string `json:"uasDimension"`
}

// Location is a GeoJSON-style point with an altitude.
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // lon, lat
	Reference   string     `json:"reference"`
	Altitude    float64    `json:"altitude"`
}

// IsZero reports whether the location is the generator's unset point.
func (l *Location) IsZero() bool {
	return l == nil || (l.Coordinates[0] == 0 && l.Coordinates[1] == 0)
}

// NewPoint returns an AGL point location.
func NewPoint(lat, lon, alt float64) *Location {
	return &Location{Type: "Point", Coordinates: [2]float64{lon, lat}, Reference: "AGL", Altitude: alt}
}

// OperationVolume is one 4D envelope of the planned flight.
type OperationVolume struct {
	Ordinal     int       `json:"ordinal"`
	Geometry    Geometry  `json:"geometry"`
	TimeBegin   time.Time `json:"timeBegin"`
	TimeEnd     time.Time `json:"timeEnd"`
	MinAltitude Altitude  `json:"minAltitude"`
	MaxAltitude Altitude  `json:"maxAltitude"`
}

// Geometry is a GeoJSON polygon with a bounding box.
type Geometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
	BBox        [4]float64     `json:"bbox"` // minLon, minLat, maxLon, maxLat
}

// Altitude is a value with unit and reference.
type Altitude struct {
	Value     float64 `json:"value"`
	UOM       string  `json:"uom"`
	Reference string  `json:"reference"`
}

// HasOperationVolumes reports whether volumes have been generated.
func (d *Document) HasOperationVolumes() bool {
	return d != nil && len(d.OperationVolumes) > 0
}

// Clone returns a deep copy via JSON round trip.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}

// MergeGenerated overlays a freshly generated document onto d. Fields the
// operator already completed are kept; the generated operation volumes
// always replace whatever d had, and so do the takeoff and landing points.
func (d *Document) MergeGenerated(gen *Document) *Document {
	if gen == nil {
		return d.Clone()
	}
	if d == nil {
		return gen.Clone()
	}
	out := d.Clone()
	g := gen.Clone()

	out.OperationVolumes = g.OperationVolumes
	out.TakeoffLocation = g.TakeoffLocation
	out.LandingLocation = g.LandingLocation
	if out.IDPlan == 0 {
		out.IDPlan = g.IDPlan
	}
	if out.NamePlan == "" {
		out.NamePlan = g.NamePlan
	}
	if isPlaceholder(out.OperatorID) {
		out.OperatorID = g.OperatorID
	}
	if out.GCSLocation.IsZero() {
		out.GCSLocation = g.GCSLocation
	}
	fillString(&out.FlightDetails.Mode, g.FlightDetails.Mode)
	fillString(&out.FlightDetails.Category, g.FlightDetails.Category)
	fc, gfc := &out.UAS.FlightCharacteristics, g.UAS.FlightCharacteristics
	if fc.MTOM == 0 {
		fc.MTOM = gfc.MTOM
	}
	if fc.MaxSpeed == 0 {
		fc.MaxSpeed = gfc.MaxSpeed
	}
	fillString(&fc.Connectivity, gfc.Connectivity)
	fillString(&fc.IDTechnology, gfc.IDTechnology)
	fillString(&out.UAS.GeneralCharacteristics.UASType, g.UAS.GeneralCharacteristics.UASType)
	fillString(&out.UAS.GeneralCharacteristics.UASClass, g.UAS.GeneralCharacteristics.UASClass)
	fillString(&out.UAS.GeneralCharacteristics.UASDimension, g.UAS.GeneralCharacteristics.UASDimension)
	if out.CreationTime == nil {
		out.CreationTime = g.CreationTime
	}
	out.UpdateTime = g.UpdateTime
	return out
}

func fillString(dst *string, src string) {
	if isPlaceholder(*dst) && !isPlaceholder(src) {
		*dst = src
	}
}
