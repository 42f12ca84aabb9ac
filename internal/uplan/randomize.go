package uplan

import (
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	firstNames = []string{"Lucia", "Mateo", "Sofia", "Hugo", "Martina", "Pablo"}
	lastNames  = []string{"Garcia", "Lopez", "Martinez", "Sanchez", "Perez", "Gomez"}
	brands     = []string{"DJI", "Parrot", "Autel", "Skydio"}
	classes    = []string{"C0", "C1", "C2", "C3"}
)

// Randomize fills every placeholder in a copy of doc with plausible test
// data. It never touches operation volumes. Used by the randomize test mode
// to exercise FAS submission without hand-editing a document.
func Randomize(doc *Document, rng *rand.Rand) *Document {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	out := doc.Clone()
	if out == nil {
		out = &Document{}
	}
	pick := func(xs []string) string { return xs[rng.IntN(len(xs))] }
	digits := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte('0' + rng.IntN(10))
		}
		return string(b)
	}

	fillString(&out.OperatorID, "ESP"+digits(12))
	fillString(&out.DataOwnerIdentifier.SAC, digits(3))
	fillString(&out.DataOwnerIdentifier.SIC, digits(3))
	fillString(&out.DataSourceIdentifier.SAC, digits(3))
	fillString(&out.DataSourceIdentifier.SIC, digits(3))

	cd := &out.ContactDetails
	first, last := pick(firstNames), pick(lastNames)
	fillString(&cd.FirstName, first)
	fillString(&cd.LastName, last)
	if !hasRealValue(cd.Phones) {
		cd.Phones = []string{"+34 6" + digits(8)}
	}
	if !hasRealValue(cd.Emails) {
		cd.Emails = []string{fmt.Sprintf("%s.%s@example.org", first, last)}
	}

	fillString(&out.FlightDetails.Category, "OPENA1")
	fillString(&out.FlightDetails.Mode, FlightMode(out.FlightDetails.Category))

	uas := &out.UAS
	fillString(&uas.RegistrationNumber, "ESP-RPAS-"+digits(6))
	fillString(&uas.SerialNumber, "SN"+digits(10))
	if uas.FlightCharacteristics.MTOM <= 0 {
		uas.FlightCharacteristics.MTOM = 0.25 + rng.Float64()*4
	}
	if uas.FlightCharacteristics.MaxSpeed <= 0 {
		uas.FlightCharacteristics.MaxSpeed = 10 + rng.Float64()*15
	}
	gc := &uas.GeneralCharacteristics
	fillString(&gc.Brand, pick(brands))
	fillString(&gc.Model, "M"+digits(3))
	fillString(&gc.TypeCertificate, "TC-"+digits(5))
	fillString(&gc.UASType, "MULTIROTOR")
	fillString(&gc.UASClass, pick(classes))

	if out.GCSLocation.IsZero() && !out.TakeoffLocation.IsZero() {
		t := *out.TakeoffLocation
		out.GCSLocation = &t
	}
	return out
}
