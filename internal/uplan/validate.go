package uplan

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// Report is the outcome of a completeness check.
type Report struct {
	IsComplete    bool              `json:"is_complete"`
	MissingFields []string          `json:"missing_fields,omitempty"` // schema order
	FieldErrors   map[string]string `json:"field_errors,omitempty"`   // path -> message
}

// Validator checks a document for fields FAS requires.
type Validator interface {
	Validate(doc *Document) Report
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(doc *Document) Report

// Validate calls f(doc).
func (f ValidatorFunc) Validate(doc *Document) Report { return f(doc) }

// Valid flight modes
var validModes = map[string]bool{"VLOS": true, "BVLOS": true}

var phoneRe = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)

// SchemaValidator is the default field-level validator.
type SchemaValidator struct{}

type report struct {
	missing []string
	errs    map[string]string
}

func (r *report) require(path, value string) {
	if isPlaceholder(value) {
		r.missing = append(r.missing, path)
		r.errs[path] = "is required"
	}
}

func (r *report) fail(path, msg string) {
	if _, exists := r.errs[path]; !exists {
		r.errs[path] = msg
	}
}

// Validate implements Validator.
func (SchemaValidator) Validate(doc *Document) Report {
	if doc == nil {
		return Report{
			MissingFields: []string{"document"},
			FieldErrors:   map[string]string{"document": "authorization document is missing"},
		}
	}

	r := &report{errs: make(map[string]string)}

	r.require("operatorId", doc.OperatorID)
	r.require("dataOwnerIdentifier.sac", doc.DataOwnerIdentifier.SAC)
	r.require("dataOwnerIdentifier.sic", doc.DataOwnerIdentifier.SIC)
	r.require("dataSourceIdentifier.sac", doc.DataSourceIdentifier.SAC)
	r.require("dataSourceIdentifier.sic", doc.DataSourceIdentifier.SIC)

	cd := doc.ContactDetails
	r.require("contactDetails.firstName", cd.FirstName)
	r.require("contactDetails.lastName", cd.LastName)
	if !hasRealValue(cd.Phones) {
		r.require("contactDetails.phones", "")
	}
	for i, p := range cd.Phones {
		if !isPlaceholder(p) && !phoneRe.MatchString(p) {
			r.fail(fmt.Sprintf("contactDetails.phones[%d]", i), "invalid phone number")
		}
	}
	if !hasRealValue(cd.Emails) {
		r.require("contactDetails.emails", "")
	}
	for i, e := range cd.Emails {
		if isPlaceholder(e) {
			continue
		}
		if _, err := mail.ParseAddress(e); err != nil {
			r.fail(fmt.Sprintf("contactDetails.emails[%d]", i), "invalid email address")
		}
	}

	fd := doc.FlightDetails
	r.require("flightDetails.mode", fd.Mode)
	if !isPlaceholder(fd.Mode) && !validModes[strings.ToUpper(fd.Mode)] {
		r.fail("flightDetails.mode", "must be VLOS or BVLOS")
	}
	r.require("flightDetails.category", fd.Category)
	if !isPlaceholder(fd.Category) && !IsKnownCategory(fd.Category) {
		r.fail("flightDetails.category", "unknown operation category")
	}

	uas := doc.UAS
	r.require("uas.registrationNumber", uas.RegistrationNumber)
	r.require("uas.serialNumber", uas.SerialNumber)
	if uas.FlightCharacteristics.MTOM <= 0 {
		r.require("uas.flightCharacteristics.uasMTOM", "")
	}
	if uas.FlightCharacteristics.MaxSpeed <= 0 {
		r.require("uas.flightCharacteristics.uasMaxSpeed", "")
	}
	gc := uas.GeneralCharacteristics
	r.require("uas.generalCharacteristics.brand", gc.Brand)
	r.require("uas.generalCharacteristics.model", gc.Model)
	r.require("uas.generalCharacteristics.typeCertificate", gc.TypeCertificate)
	r.require("uas.generalCharacteristics.uasType", gc.UASType)
	r.require("uas.generalCharacteristics.uasClass", gc.UASClass)

	checkLocation(r, "takeoffLocation", doc.TakeoffLocation)
	checkLocation(r, "landingLocation", doc.LandingLocation)
	checkLocation(r, "gcsLocation", doc.GCSLocation)

	if len(doc.OperationVolumes) == 0 {
		r.require("operationVolumes", "")
	}
	for i, v := range doc.OperationVolumes {
		if !v.TimeEnd.After(v.TimeBegin) {
			r.fail(fmt.Sprintf("operationVolumes[%d].timeEnd", i), "must be after timeBegin")
		}
		if v.MaxAltitude.Value < v.MinAltitude.Value {
			r.fail(fmt.Sprintf("operationVolumes[%d].maxAltitude", i), "must not be below minAltitude")
		}
	}

	rep := Report{
		IsComplete:    len(r.errs) == 0,
		MissingFields: r.missing,
	}
	if len(r.errs) > 0 {
		rep.FieldErrors = r.errs
	}
	return rep
}

func checkLocation(r *report, path string, loc *Location) {
	if loc.IsZero() {
		r.require(path, "")
		return
	}
	lon, lat := loc.Coordinates[0], loc.Coordinates[1]
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		r.fail(path+".coordinates", "coordinates out of range")
	}
}

// isPlaceholder reports whether s is empty or a generator placeholder.
func isPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, Placeholder) || strings.EqualFold(s, PlaceholderEmail)
}

func hasRealValue(values []string) bool {
	for _, v := range values {
		if !isPlaceholder(v) {
			return true
		}
	}
	return false
}
