package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/profile-desk/backend/internal/models"
)

func sample() []models.ExtractionResult {
	return []models.ExtractionResult{
		{
			CompanyProfile: models.CompanyProfile{
				Name:             "Acme Structural",
				Website:          "https://acme.example",
				ContactDetails:   models.ContactDetails{Email: "info@acme.example"},
				PostalAddress:    models.PostalAddress{City: "Leeds", Country: "UK"},
				ServiceOfferings: []string{"Structural Engineering", "Surveys"},
			},
			ID:          "1700000000000-abcd1234",
			FileName:    "acme.pdf",
			ExtractedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
			Status:      models.ResultStatusExtracted,
			Industry:    "Engineering & Consulting",
			Employees:   "120+ staff",
			Established: "1998",
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "msgpack": FormatMsgpack, " xlsx ": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("csv")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestEncodeJSON(t *testing.T) {
	doc, err := Encode(sample(), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "company_profiles.json", doc.FileName)
	assert.Equal(t, "application/json", doc.ContentType)

	text := string(doc.Data)
	assert.True(t, strings.HasPrefix(text, "[\n  {\n    \""), text[:20])
	assert.Contains(t, text, `"company_name": "Acme Structural"`)
	assert.Contains(t, text, `"industry": "Engineering & Consulting"`)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(doc.Data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "acme.pdf", decoded[0]["fileName"])
	assert.Equal(t, "extracted", decoded[0]["status"])
}

func TestEncodeJSON_EmptySelection(t *testing.T) {
	doc, err := Encode(nil, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(doc.Data))
}

func TestEncodeMsgpack(t *testing.T) {
	doc, err := Encode(sample(), FormatMsgpack)
	require.NoError(t, err)
	assert.Equal(t, "company_profiles.msgpack", doc.FileName)

	var decoded []models.ExtractionResult
	require.NoError(t, msgpack.Unmarshal(doc.Data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "Acme Structural", decoded[0].Name)
	assert.Equal(t, "120+ staff", decoded[0].Employees)
}

func TestEncodeXLSX(t *testing.T) {
	doc, err := Encode(sample(), FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "company_profiles.xlsx", doc.FileName)

	f, err := xlsx.OpenBinary(doc.Data)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	rows := f.Sheets[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "Company", rows[0].Cells[0].String())
	assert.Equal(t, "Acme Structural", rows[1].Cells[0].String())
	assert.Equal(t, "Structural Engineering; Surveys", rows[1].Cells[10].String())
	assert.Equal(t, "2024-05-01 09:30:00", rows[1].Cells[11].String())
}

func TestEncodeUnknown(t *testing.T) {
	_, err := Encode(sample(), Format("csv"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
