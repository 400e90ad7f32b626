// Package flow serves the WhatsApp Flows data-exchange endpoint that turns
// a submitted form into a maintenance request.
package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uberfix/fixhooks/internal/maintenance"
)

// Actions sent by the WhatsApp client.
const (
	ActionPing         = "ping"
	ActionInit         = "INIT"
	ActionDataExchange = "data_exchange"
)

const (
	msgMissingFields = "يرجى تعبئة جميع الحقول المطلوبة."
	msgSystemError   = "خطأ في النظام. يرجى المحاولة لاحقاً."
	msgCreateFailed  = "فشل في إرسال الطلب. يرجى المحاولة مرة أخرى."
)

// exchangeRequest is the decrypted request payload.
type exchangeRequest struct {
	Version   string         `json:"version"`
	Action    string         `json:"action"`
	Screen    string         `json:"screen"`
	Data      map[string]any `json:"data"`
	FlowToken string         `json:"flow_token"`
	WaPhone   string         `json:"wa_phone"`
}

// response is the plaintext of every encrypted reply.
type response struct {
	Version string `json:"version"`
	Screen  string `json:"screen,omitempty"`
	Data    any    `json:"data"`
}

// Submission is a validated request form.
type Submission struct {
	RequesterName string
	ServiceType   string
	Location      string
	Priority      string
	Description   string
	SenderPhone   string
}

// requiredFields are the form keys every data_exchange must carry.
var requiredFields = []string{"requester_name", "maintenance_type", "branch_name", "priority", "description"}

// parseSubmission validates the form data and returns the names of any
// missing required fields.
func parseSubmission(req exchangeRequest) (Submission, []string) {
	var missing []string
	values := make(map[string]string, len(requiredFields))
	for _, key := range requiredFields {
		v := stringField(req.Data, key)
		if v == "" {
			missing = append(missing, key)
		}
		values[key] = v
	}
	return Submission{
		RequesterName: values["requester_name"],
		ServiceType:   values["maintenance_type"],
		Location:      values["branch_name"],
		Priority:      values["priority"],
		Description:   values["description"],
		SenderPhone:   strings.TrimSpace(req.WaPhone),
	}, missing
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// MapPriority converts a form priority to the request priority scale.
func MapPriority(p string) string {
	switch p {
	case "urgent":
		return maintenance.PriorityHigh
	case "medium":
		return maintenance.PriorityMedium
	case "normal":
		return maintenance.PriorityLow
	default:
		return maintenance.PriorityMedium
	}
}

func priorityLabel(p string) string {
	switch p {
	case "urgent":
		return "🔴 عاجل"
	case "medium":
		return "🟡 متوسط"
	default:
		return "🟢 عادي"
	}
}

// ReferenceCode returns the display number for a request created at t.
func ReferenceCode(t time.Time) string {
	return "WA-" + strings.ToUpper(strconv.FormatInt(t.UnixMilli(), 36))
}

func (s Submission) title() string {
	return s.ServiceType + " - " + s.Location
}

func (s Submission) confirmation(ref string) string {
	return fmt.Sprintf("✅ تم استلام طلب الصيانة بنجاح!\n\n📋 رقم الطلب: %s\n✍️ مقدم الطلب: %s\n🔧 النوع: %s\n🏢 الفرع: %s\n📋 الأولوية: %s\n\nسيتم التواصل معك قريباً لمعاينة الطلب. 🛠️ UberFix",
		ref, s.RequesterName, s.ServiceType, s.Location, priorityLabel(s.Priority))
}
