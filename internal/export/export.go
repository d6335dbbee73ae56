// Package export serializes selected extraction results for download.
package export

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/profile-desk/backend/internal/models"
)

// Format names an export encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
	FormatXLSX    Format = "xlsx"
)

// BaseName is the download name without extension.
const BaseName = "company_profiles"

var ErrUnknownFormat = eris.New("unknown export format")

// Document is an encoded export ready to be served or written.
type Document struct {
	Data        []byte
	ContentType string
	FileName    string
}

// ParseFormat maps a query value to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatMsgpack, FormatXLSX:
		return f, nil
	default:
		return "", eris.Wrapf(ErrUnknownFormat, "%q", s)
	}
}

// Encode serializes results in the given format. The JSON form is an array
// of full result objects with two-space indentation.
func Encode(results []models.ExtractionResult, format Format) (Document, error) {
	if results == nil {
		results = []models.ExtractionResult{}
	}

	switch format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return Document{}, eris.Wrap(err, "export: encode json")
		}
		return Document{Data: data, ContentType: "application/json", FileName: BaseName + ".json"}, nil

	case FormatMsgpack:
		data, err := msgpack.Marshal(results)
		if err != nil {
			return Document{}, eris.Wrap(err, "export: encode msgpack")
		}
		return Document{Data: data, ContentType: "application/x-msgpack", FileName: BaseName + ".msgpack"}, nil

	case FormatXLSX:
		data, err := encodeXLSX(results)
		if err != nil {
			return Document{}, err
		}
		return Document{
			Data:        data,
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			FileName:    BaseName + ".xlsx",
		}, nil
	}
	return Document{}, eris.Wrapf(ErrUnknownFormat, "%q", format)
}

// Columns of the spreadsheet export, in order.
var Columns = []string{
	"Company", "File", "Industry", "Employees", "Established", "Website",
	"Email", "Phone", "City", "Country", "Services", "Extracted At",
}

func encodeXLSX(results []models.ExtractionResult) ([]byte, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Profiles")
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().SetString(col)
	}

	for _, r := range results {
		row := sheet.AddRow()
		for _, v := range []string{
			r.Name,
			r.FileName,
			r.Industry,
			r.Employees,
			r.Established,
			r.Website,
			r.ContactDetails.Email,
			r.ContactDetails.Phone,
			r.PostalAddress.City,
			r.PostalAddress.Country,
			strings.Join(r.ServiceOfferings, "; "),
			r.ExtractedAt.Format("2006-01-02 15:04:05"),
		} {
			row.AddCell().SetString(v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write xlsx")
	}
	return buf.Bytes(), nil
}
