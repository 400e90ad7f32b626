// Package leads turns Meta lead-ads webhook deliveries into maintenance
// requests.
package leads

import (
	"encoding/json"
	"strings"

	"github.com/uberfix/fixhooks/internal/providers"
)

const (
	objectPage   = "page"
	fieldLeadgen = "leadgen"
)

// Envelope is the webhook delivery body.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for one page.
type Entry struct {
	ID      flexID   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

// Change is one subscribed field update.
type Change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// LeadgenValue is the value of a leadgen change.
type LeadgenValue struct {
	LeadgenID   flexID `json:"leadgen_id"`
	FormID      flexID `json:"form_id"`
	PageID      flexID `json:"page_id"`
	AdID        flexID `json:"ad_id"`
	AdgroupID   flexID `json:"adgroup_id"`
	CampaignID  flexID `json:"campaign_id"`
	CreatedTime int64  `json:"created_time"`
}

// flexID accepts ids sent as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Fields are the lead form answers this service understands.
type Fields struct {
	FullName    string
	Email       string
	Phone       string
	City        string
	Address     string
	ServiceType string
	Message     string
}

// ParseFieldData maps form answers by name. Forms are built by hand, so
// names are matched loosely in English and Arabic; the first rule that
// matches a field wins.
func ParseFieldData(data []providers.LeadField) Fields {
	var f Fields
	for _, field := range data {
		name := strings.ToLower(field.Name)
		value := field.First()
		switch {
		case strings.Contains(name, "name"):
			f.FullName = value
		case strings.Contains(name, "email"):
			f.Email = value
		case strings.Contains(name, "phone"), strings.Contains(name, "mobile"):
			f.Phone = value
		case strings.Contains(name, "city"), strings.Contains(name, "مدينة"):
			f.City = value
		case strings.Contains(name, "address"), strings.Contains(name, "عنوان"):
			f.Address = value
		case strings.Contains(name, "service"), strings.Contains(name, "خدمة"):
			f.ServiceType = value
		case strings.Contains(name, "message"), strings.Contains(name, "رسالة"), strings.Contains(name, "description"):
			f.Message = value
		}
	}
	return f
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
