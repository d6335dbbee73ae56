package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ResultStatusExtracted is the fixed status tag carried by every result.
const ResultStatusExtracted = "extracted"

// ExtractionResult is one completed extraction as shown in the results table.
// Profile fields are flattened into the JSON object next to the bookkeeping
// and derived display fields. Bookkeeping keys win over profile keys of the
// same name.
type ExtractionResult struct {
	CompanyProfile

	ID          string    `json:"id" msgpack:"id"`
	FileName    string    `json:"fileName" msgpack:"fileName"`
	ExtractedAt time.Time `json:"extractedAt" msgpack:"extractedAt"`
	Status      string    `json:"status" msgpack:"status"`
	Industry    string    `json:"industry" msgpack:"industry"`
	Employees   string    `json:"employees" msgpack:"employees"`
	Established string    `json:"established" msgpack:"established"`
}

type resultMeta struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	ExtractedAt time.Time `json:"extractedAt"`
	Status      string    `json:"status"`
	Industry    string    `json:"industry"`
	Employees   string    `json:"employees"`
	Established string    `json:"established"`
}

var resultMetaKeys = []string{"id", "fileName", "extractedAt", "status", "industry", "employees", "established"}

func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	profile, err := r.CompanyProfile.MarshalJSON()
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(profile, &fields); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(resultMeta{
		ID:          r.ID,
		FileName:    r.FileName,
		ExtractedAt: r.ExtractedAt,
		Status:      r.Status,
		Industry:    r.Industry,
		Employees:   r.Employees,
		Established: r.Established,
	})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meta, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (r *ExtractionResult) UnmarshalJSON(data []byte) error {
	var meta resultMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, k := range resultMetaKeys {
		delete(fields, k)
	}
	rest, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	*r = ExtractionResult{
		ID:          meta.ID,
		FileName:    meta.FileName,
		ExtractedAt: meta.ExtractedAt,
		Status:      meta.Status,
		Industry:    meta.Industry,
		Employees:   meta.Employees,
		Established: meta.Established,
	}
	return r.CompanyProfile.UnmarshalJSON(rest)
}

// EncodeMsgpack writes the same object as MarshalJSON, so unknown profile
// fields survive the msgpack export too.
func (r ExtractionResult) EncodeMsgpack(enc *msgpack.Encoder) error {
	data, err := r.MarshalJSON()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return enc.Encode(plainNumbers(v))
}

func (r *ExtractionResult) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.UnmarshalJSON(data)
}

// plainNumbers turns json.Number values into int64 or float64.
func plainNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		for k, item := range t {
			t[k] = plainNumbers(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = plainNumbers(item)
		}
		return t
	}
	return v
}
