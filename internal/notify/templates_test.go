package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplates_CoverEveryEventType(t *testing.T) {
	all := []EventType{
		EventRequestCreated, EventStatusUpdated, EventVendorAssigned, EventSLAWarning,
		EventRequestCompleted, EventTechnicianApproved, EventTechnicianRejected, EventTechnicianJobAssigned,
	}
	assert.ElementsMatch(t, all, EventTypes())

	for _, et := range all {
		tpl, ok := Lookup(et)
		require.True(t, ok, et)
		assert.NotEmpty(t, tpl.Title, et)
		assert.NotEmpty(t, tpl.EmailSubject, et)
		assert.NotEmpty(t, tpl.Message(Data{}), et)
		assert.Contains(t, tpl.EmailHTML(Data{}), "direction: rtl", et)
	}
	assert.False(t, EventType("bogus").Valid())
}

func TestTemplates_Severity(t *testing.T) {
	for et, want := range map[EventType]string{
		EventSLAWarning:       "warning",
		EventRequestCompleted: "success",
		EventRequestCreated:   "info",
		EventVendorAssigned:   "info",
	} {
		tpl, _ := Lookup(et)
		assert.Equal(t, want, tpl.Severity, et)
	}
}

func TestTemplates_Fallbacks(t *testing.T) {
	rejected, _ := Lookup(EventTechnicianRejected)
	assert.Equal(t, "عذراً Ali، لم يتم قبول طلب التسجيل. السبب: لم يتم تحديد سبب", rejected.Message(Data{TechnicianName: "Ali"}))

	job, _ := Lookup(EventTechnicianJobAssigned)
	assert.Equal(t, `لديك طلب صيانة جديد "Leak" على بعد ? كم - عام`, job.Message(Data{RequestTitle: "Leak"}))
	assert.Equal(t, `لديك طلب صيانة جديد "Leak" على بعد 3 كم - سباكة`, job.Message(Data{RequestTitle: "Leak", Distance: "3", JobType: "سباكة"}))

	approved, _ := Lookup(EventTechnicianApproved)
	assert.Contains(t, approved.EmailHTML(Data{}), "https://uberfix.shop/technician/dashboard")
	assert.Contains(t, approved.EmailHTML(Data{LoginURL: "https://example.com/login"}), "https://example.com/login")
}

func TestTemplates_OptionalEmailLines(t *testing.T) {
	created, _ := Lookup(EventRequestCreated)
	assert.NotContains(t, created.EmailHTML(Data{RequestTitle: "AC"}), "العقار")
	html := created.EmailHTML(Data{RequestTitle: "AC", PropertyName: "Tower B"})
	assert.Contains(t, html, "Tower B")
	assert.Contains(t, html, "مفتوح")
}

func TestTemplates_EscapeEmailValues(t *testing.T) {
	created, _ := Lookup(EventRequestCreated)
	html := created.EmailHTML(Data{RequestTitle: `<script>alert(1)</script>`})
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}
