package uplan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeDoc() *Document {
	begin := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	return &Document{
		OperatorID:           "ESP123456789012",
		DataOwnerIdentifier:  DataIdentifier{SAC: "001", SIC: "002"},
		DataSourceIdentifier: DataIdentifier{SAC: "003", SIC: "004"},
		ContactDetails: ContactDetails{
			FirstName: "Lucia",
			LastName:  "Garcia",
			Phones:    []string{"+34 600111222"},
			Emails:    []string{"lucia@example.org"},
		},
		FlightDetails: FlightDetails{Mode: "VLOS", Category: "OPENA2"},
		UAS: UAS{
			RegistrationNumber: "ESP-RPAS-000001",
			SerialNumber:       "SN0001",
			FlightCharacteristics: FlightCharacteristics{
				MTOM:     1.1,
				MaxSpeed: 20,
			},
			GeneralCharacteristics: GeneralCharacteristics{
				Brand:           "DJI",
				Model:           "M300",
				TypeCertificate: "TC-1",
				UASType:         "MULTIROTOR",
				UASClass:        "C2",
			},
		},
		TakeoffLocation: NewPoint(38.54, -0.13, 0),
		LandingLocation: NewPoint(38.55, -0.12, 0),
		GCSLocation:     NewPoint(38.54, -0.13, 0),
		OperationVolumes: []OperationVolume{{
			TimeBegin:   begin,
			TimeEnd:     begin.Add(time.Minute),
			MinAltitude: Altitude{Value: 10, UOM: "M", Reference: "AGL"},
			MaxAltitude: Altitude{Value: 60, UOM: "M", Reference: "AGL"},
		}},
	}
}

func TestValidateComplete(t *testing.T) {
	rep := SchemaValidator{}.Validate(completeDoc())
	assert.True(t, rep.IsComplete, "field errors: %v", rep.FieldErrors)
	assert.Empty(t, rep.MissingFields)
	assert.Nil(t, rep.FieldErrors)
}

func TestValidateMissingOperatorID(t *testing.T) {
	doc := completeDoc()
	doc.OperatorID = ""

	rep := SchemaValidator{}.Validate(doc)
	require.False(t, rep.IsComplete)
	assert.Equal(t, []string{"operatorId"}, rep.MissingFields)
	assert.Equal(t, "is required", rep.FieldErrors["operatorId"])
}

func TestValidatePlaceholdersCountAsMissing(t *testing.T) {
	doc := completeDoc()
	doc.OperatorID = "TBD"
	doc.ContactDetails.Emails = []string{PlaceholderEmail}
	doc.ContactDetails.Phones = []string{"tbd"}
	doc.GCSLocation = NewPoint(0, 0, 0)

	rep := SchemaValidator{}.Validate(doc)
	require.False(t, rep.IsComplete)
	assert.Equal(t, []string{
		"operatorId",
		"contactDetails.phones",
		"contactDetails.emails",
		"gcsLocation",
	}, rep.MissingFields)
}

func TestValidateMissingOrderFollowsSchema(t *testing.T) {
	rep := SchemaValidator{}.Validate(&Document{})
	require.False(t, rep.IsComplete)
	require.NotEmpty(t, rep.MissingFields)
	assert.Equal(t, "operatorId", rep.MissingFields[0])
	assert.Equal(t, "operationVolumes", rep.MissingFields[len(rep.MissingFields)-1])
}

func TestValidateFormatErrors(t *testing.T) {
	doc := completeDoc()
	doc.ContactDetails.Emails = []string{"not-an-email"}
	doc.FlightDetails.Mode = "IFR"
	doc.OperationVolumes[0].TimeEnd = doc.OperationVolumes[0].TimeBegin

	rep := SchemaValidator{}.Validate(doc)
	require.False(t, rep.IsComplete)
	assert.Empty(t, rep.MissingFields)
	assert.Contains(t, rep.FieldErrors, "contactDetails.emails[0]")
	assert.Contains(t, rep.FieldErrors, "flightDetails.mode")
	assert.Contains(t, rep.FieldErrors, "operationVolumes[0].timeEnd")
}

func TestValidateNilDocument(t *testing.T) {
	rep := SchemaValidator{}.Validate(nil)
	assert.False(t, rep.IsComplete)
	assert.Equal(t, []string{"document"}, rep.MissingFields)
}

func TestRandomizeCompletesDocument(t *testing.T) {
	doc := &Document{
		OperatorID:       Placeholder,
		TakeoffLocation:  NewPoint(38.54, -0.13, 0),
		LandingLocation:  NewPoint(38.55, -0.12, 0),
		OperationVolumes: completeDoc().OperationVolumes,
	}
	out := Randomize(doc, nil)

	rep := SchemaValidator{}.Validate(out)
	assert.True(t, rep.IsComplete, "field errors: %v", rep.FieldErrors)
	assert.Equal(t, Placeholder, doc.OperatorID, "input must not be modified")
}

func TestMergeGeneratedKeepsOperatorFields(t *testing.T) {
	local := completeDoc()
	local.OperationVolumes = nil
	local.TakeoffLocation = nil

	gen := &Document{
		OperatorID:       Placeholder,
		TakeoffLocation:  NewPoint(1, 2, 3),
		OperationVolumes: completeDoc().OperationVolumes,
	}
	merged := local.MergeGenerated(gen)

	assert.Equal(t, "ESP123456789012", merged.OperatorID)
	assert.Equal(t, "Lucia", merged.ContactDetails.FirstName)
	assert.Len(t, merged.OperationVolumes, 1)
	assert.Equal(t, [2]float64{2, 1}, merged.TakeoffLocation.Coordinates)
}
