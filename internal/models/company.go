package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// CompanyProfile is the structured schema returned by the extraction backend.
// The backend output is open-ended agent data, so decoding is lenient: scalar
// fields accept strings, numbers and booleans, malformed fields decode to
// their zero value, and Raw keeps every key of the object as received.
type CompanyProfile struct {
	Name                 string         `json:"company_name" msgpack:"company_name"`
	Overview             string         `json:"company_overview" msgpack:"company_overview"`
	Website              string         `json:"website" msgpack:"website"`
	PostalAddress        PostalAddress  `json:"postal_address" msgpack:"postal_address"`
	ContactDetails       ContactDetails `json:"contact_details" msgpack:"contact_details"`
	BoardMembers         []Person       `json:"board_members" msgpack:"board_members"`
	Directors            []Person       `json:"directors" msgpack:"directors"`
	ServiceOfferings     []string       `json:"service_offerings" msgpack:"service_offerings"`
	Memberships          []string       `json:"memberships" msgpack:"memberships"`
	RegionalOffices      []Office       `json:"regional_offices" msgpack:"regional_offices"`
	InternationalOffices []Office       `json:"international_offices" msgpack:"international_offices"`
	Vision               string         `json:"vision" msgpack:"vision"`
	Mission              string         `json:"mission" msgpack:"mission"`
	Ownership            string         `json:"ownership" msgpack:"ownership"`
	SocialResponsibility string         `json:"social_responsibility" msgpack:"social_responsibility"`
	Awards               []string       `json:"awards" msgpack:"awards"`
	Projects             []Project      `json:"projects" msgpack:"projects"`

	// Raw is the extracted object exactly as received. It is nil for
	// profiles built in code. Treat it as read-only: copies share it.
	Raw map[string]json.RawMessage `json:"-" msgpack:"-"`
}

type PostalAddress struct {
	Street     string `json:"street" msgpack:"street"`
	City       string `json:"city" msgpack:"city"`
	Region     string `json:"region" msgpack:"region"`
	PostalCode string `json:"postal_code" msgpack:"postal_code"`
	Country    string `json:"country" msgpack:"country"`
}

type ContactDetails struct {
	Phone string `json:"phone" msgpack:"phone"`
	Fax   string `json:"fax" msgpack:"fax"`
	Email string `json:"email" msgpack:"email"`
}

type Person struct {
	Name  string `json:"name" msgpack:"name"`
	Title string `json:"title" msgpack:"title"`
}

type Office struct {
	Name    string `json:"name" msgpack:"name"`
	Address string `json:"address" msgpack:"address"`
	Phone   string `json:"phone" msgpack:"phone"`
}

type Project struct {
	Name        string `json:"name" msgpack:"name"`
	Client      string `json:"client" msgpack:"client"`
	Year        string `json:"year" msgpack:"year"`
	Description string `json:"description" msgpack:"description"`
}

// profileFields has the fields of CompanyProfile without its methods.
type profileFields CompanyProfile

// MarshalJSON writes Raw verbatim when present and the typed fields otherwise.
func (p CompanyProfile) MarshalJSON() ([]byte, error) {
	if p.Raw != nil {
		return json.Marshal(p.Raw)
	}
	return json.Marshal(profileFields(p))
}

// UnmarshalJSON decodes an extracted object leniently. Anything other than
// an object yields an empty profile.
func (p *CompanyProfile) UnmarshalJSON(data []byte) error {
	*p = CompanyProfile{}

	obj := object(data)
	if obj == nil {
		return nil
	}
	p.Raw = obj

	p.Name = text(obj["company_name"])
	p.Overview = text(obj["company_overview"])
	p.Website = text(obj["website"])
	p.Vision = text(obj["vision"])
	p.Mission = text(obj["mission"])
	p.Ownership = text(obj["ownership"])
	p.SocialResponsibility = text(obj["social_responsibility"])

	p.ServiceOfferings = texts(obj["service_offerings"])
	p.Memberships = texts(obj["memberships"])
	p.Awards = texts(obj["awards"])

	if addr := object(obj["postal_address"]); addr != nil {
		p.PostalAddress = PostalAddress{
			Street:     text(addr["street"]),
			City:       text(addr["city"]),
			Region:     text(addr["region"]),
			PostalCode: text(addr["postal_code"]),
			Country:    text(addr["country"]),
		}
	}
	if contact := object(obj["contact_details"]); contact != nil {
		p.ContactDetails = ContactDetails{
			Phone: text(contact["phone"]),
			Fax:   text(contact["fax"]),
			Email: text(contact["email"]),
		}
	}

	for _, m := range objects(obj["board_members"]) {
		p.BoardMembers = append(p.BoardMembers, Person{Name: text(m["name"]), Title: text(m["title"])})
	}
	for _, m := range objects(obj["directors"]) {
		p.Directors = append(p.Directors, Person{Name: text(m["name"]), Title: text(m["title"])})
	}
	p.RegionalOffices = offices(obj["regional_offices"])
	p.InternationalOffices = offices(obj["international_offices"])
	for _, m := range objects(obj["projects"]) {
		p.Projects = append(p.Projects, Project{
			Name:        text(m["name"]),
			Client:      text(m["client"]),
			Year:        text(m["year"]),
			Description: text(m["description"]),
		})
	}
	return nil
}

func offices(raw json.RawMessage) []Office {
	var out []Office
	for _, m := range objects(raw) {
		out = append(out, Office{Name: text(m["name"]), Address: text(m["address"]), Phone: text(m["phone"])})
	}
	return out
}

// object returns the members of a JSON object, or nil for any other value.
func object(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// objects returns the object elements of a JSON array. Other elements are
// skipped.
func objects(raw json.RawMessage) []map[string]json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []map[string]json.RawMessage
	for _, item := range items {
		if m := object(item); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// text renders a JSON scalar as a string. Numbers keep their literal form;
// null, objects and arrays yield "".
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return ""
		}
		return strconv.FormatBool(b)
	case 'n', '{', '[':
		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		return n.String()
	}
}

// texts accepts an array of scalars or a single scalar.
func texts(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := text(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, item := range items {
		if s := text(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
