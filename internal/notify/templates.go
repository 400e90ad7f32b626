package notify

import (
	"html"
	"strings"
)

// Template renders one event type for every channel.
type Template struct {
	Title        string
	EmailSubject string
	Message      func(d Data) string
	EmailHTML    func(d Data) string
	// Severity is the in-app notification type.
	Severity string
}

// Lookup returns the template for t.
func Lookup(t EventType) (Template, bool) {
	tpl, ok := templates[t]
	return tpl, ok
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// esc escapes caller-supplied values embedded in email markup.
func esc(v string) string { return html.EscapeString(v) }

func emailBody(inner string) string {
	return `
      <div style="font-family: Arial, sans-serif; direction: rtl; text-align: right;">` + inner + `
      </div>
    `
}

func optionalLine(label, value string) string {
	if value == "" {
		return ""
	}
	return `<p><strong>` + label + `:</strong> ` + esc(value) + `</p>`
}

var templates = map[EventType]Template{
	EventRequestCreated: {
		Title:        "طلب صيانة جديد",
		EmailSubject: "طلب صيانة جديد - UberFix",
		Severity:     "info",
		Message: func(d Data) string {
			return "تم إنشاء طلب صيانة جديد: " + d.RequestTitle
		},
		EmailHTML: func(d Data) string {
			return emailBody(`
        <h2 style="color: #2563eb;">طلب صيانة جديد</h2>
        <p>تم إنشاء طلب صيانة جديد:</p>
        <div style="background: #f3f4f6; padding: 15px; border-radius: 8px; margin: 15px 0;">
          <p><strong>العنوان:</strong> ` + esc(d.RequestTitle) + `</p>
          ` + optionalLine("العقار", d.PropertyName) + `
          <p><strong>الحالة:</strong> ` + esc(or(d.RequestStatus, "مفتوح")) + `</p>
        </div>
        <p>يرجى متابعة الطلب من لوحة التحكم.</p>`)
		},
	},
	EventStatusUpdated: {
		Title:        "تحديث حالة الطلب",
		EmailSubject: "تحديث حالة طلب الصيانة - UberFix",
		Severity:     "info",
		Message: func(d Data) string {
			return `تم تحديث حالة طلب "` + d.RequestTitle + `" من ` + d.OldStatus + " إلى " + d.NewStatus
		},
		EmailHTML: func(d Data) string {
			return emailBody(`
        <h2 style="color: #2563eb;">تحديث حالة الطلب</h2>
        <p>تم تحديث حالة طلب الصيانة الخاص بك:</p>
        <div style="background: #f3f4f6; padding: 15px; border-radius: 8px; margin: 15px 0;">
          <p><strong>العنوان:</strong> ` + esc(d.RequestTitle) + `</p>
          <p><strong>الحالة السابقة:</strong> <span style="color: #6b7280;">` + esc(d.OldStatus) + `</span></p>
          <p><strong>الحالة الجديدة:</strong> <span style="color: #059669;">` + esc(d.NewStatus) + `</span></p>
          ` + optionalLine("ملاحظات", d.Notes) + `
        </div>`)
		},
	},
	EventVendorAssigned: {
		Title:        "تم تخصيص فني",
		EmailSubject: "تم تخصيص فني لطلبك - UberFix",
		Severity:     "info",
		Message: func(d Data) string {
			return "تم تخصيص الفني " + d.VendorName + ` لطلب "` + d.RequestTitle + `"`
		},
		EmailHTML: func(d Data) string {
			return emailBody(`
        <h2 style="color: #2563eb;">تم تخصيص فني</h2>
        <p>تم تخصيص فني لطلب الصيانة الخاص بك:</p>
        <div style="background: #f3f4f6; padding: 15px; border-radius: 8px; margin: 15px 0;">
          <p><strong>الطلب:</strong> ` + esc(d.RequestTitle) + `</p>
          <p><strong>الفني:</strong> ` + esc(d.VendorName) + `</p>
        </div>
        <p>سيتواصل معك الفني قريباً.</p>`)
		},
	},
	EventSLAWarning: {
		Title:        "⚠️ تنبيه SLA",
		EmailSubject: "⚠️ تنبيه موعد استحقاق SLA - UberFix",
		Severity:     "warning",
		Message: func(d Data) string {
			return `تنبيه: اقتراب موعد استحقاق SLA للطلب "` + d.RequestTitle + `"`
		},
		EmailHTML: func(d Data) string {
			return emailBody(`
        <h2 style="color: #dc2626;">⚠️ تنبيه موعد استحقاق</h2>
        <p>يقترب موعد استحقاق SLA للطلب التالي:</p>
        <div style="background: #fef2f2; padding: 15px; border-radius: 8px; margin: 15px 0; border-left: 4px solid #dc2626;">
          <p><strong>الطلب:</strong> ` + esc(d.RequestTitle) + `</p>
          <p><strong>الموعد النهائي:</strong> ` + esc(d.SLADeadline) + `</p>
        </div>
        <p style="color: #dc2626;"><strong>يرجى اتخاذ الإجراء اللازم فوراً!</strong></p>`)
		},
	},
	EventRequestCompleted: {
		Title:        "تم إكمال الطلب",
		EmailSubject: "تم إكمال طلب الصيانة - UberFix",
		Severity:     "success",
		Message: func(d Data) string {
			return "تم إكمال طلب الصيانة: " + d.RequestTitle
		},
		EmailHTML: func(d Data) string {
			return emailBody(`
        <h2 style="color: #059669;">✓ تم إكمال الطلب</h2>
        <p>تم إكمال طلب الصيانة الخاص بك بنجاح:</p>
        <div style="background: #f0fdf4; padding: 15px; border-radius: 8px; margin: 15px 0; border-left: 4px solid #059669;">
          <p><strong>الطلب:</strong> ` + esc(d.RequestTitle) + `</p>
          ` + optionalLine("ملاحظات الفني", d.Notes) + `
        </div>
        <p>نرجو أن تكون راضياً عن الخدمة. يمكنك تقييم الخدمة من لوحة التحكم.</p>`)
		},
	},
	EventTechnicianApproved: {
		Title:        "🎉 تم قبول طلب التسجيل",
		EmailSubject: "مبروك! تم قبولك كفني في UberFix",
		Severity:     "info",
		Message: func(d Data) string {
			return "تهانينا " + d.TechnicianName + "! تم قبول طلب التسجيل في منصة UberFix. يمكنك الآن البدء في استقبال الطلبات."
		},
		EmailHTML: func(d Data) string {
			return emailBody(`
        <h2 style="color: #059669;">🎉 مبروك! تم قبول طلبك</h2>
        <p>عزيزي ` + esc(d.TechnicianName) + `،</p>
        <p>يسعدنا إبلاغك بأنه تم قبول طلب تسجيلك كفني في منصة <strong>UberFix</strong>.</p>
        <div style="background: #f0fdf4; padding: 20px; border-radius: 8px; margin: 20px 0; border-right: 4px solid #059669;">
          <h3 style="margin-top: 0;">الخطوات التالية:</h3>
          <ul style="padding-right: 20px;">
            <li>قم بتسجيل الدخول إلى لوحة التحكم الخاصة بك</li>
            <li>أكمل إعداد ملفك الشخصي</li>
            <li>حدد حالتك إلى "متاح" لبدء استقبال الطلبات</li>
          </ul>
        </div>
        <a href="` + esc(or(d.LoginURL, "https://uberfix.shop/technician/dashboard")) + `"
           style="display: inline-block; background: #059669; color: white; padding: 12px 24px; border-radius: 6px; text-decoration: none; font-weight: bold;">
          الدخول إلى لوحة التحكم
        </a>
        <p style="margin-top: 20px; color: #6b7280;">مرحباً بك في فريق UberFix!</p>`)
		},
	},
	EventTechnicianRejected: {
		Title:        "❌ لم يتم قبول طلب التسجيل",
		EmailSubject: "بخصوص طلب التسجيل في UberFix",
		Severity:     "info",
		Message: func(d Data) string {
			return "عذراً " + d.TechnicianName + "، لم يتم قبول طلب التسجيل. السبب: " + or(d.RejectionReason, "لم يتم تحديد سبب")
		},
		EmailHTML: func(d Data) string {
			return emailBody(`
        <h2 style="color: #dc2626;">بخصوص طلب التسجيل</h2>
        <p>عزيزي ` + esc(d.TechnicianName) + `،</p>
        <p>نأسف لإبلاغك بأنه لم يتم قبول طلب تسجيلك في منصة UberFix في الوقت الحالي.</p>
        <div style="background: #fef2f2; padding: 15px; border-radius: 8px; margin: 15px 0; border-right: 4px solid #dc2626;">
          <p><strong>السبب:</strong></p>
          <p>` + esc(or(d.RejectionReason, "لم يتم تحديد سبب محدد")) + `</p>
        </div>
        <p>يمكنك إعادة تقديم طلب التسجيل بعد استيفاء المتطلبات اللازمة.</p>
        <p style="margin-top: 20px; color: #6b7280;">نشكرك على اهتمامك بالانضمام إلى UberFix.</p>`)
		},
	},
	EventTechnicianJobAssigned: {
		Title:        "🔧 طلب صيانة جديد",
		EmailSubject: "طلب صيانة جديد متاح - UberFix",
		Severity:     "info",
		Message: func(d Data) string {
			return `لديك طلب صيانة جديد "` + d.RequestTitle + `" على بعد ` + or(d.Distance, "?") + " كم - " + or(d.JobType, "عام")
		},
		EmailHTML: func(d Data) string {
			return emailBody(`
        <h2 style="color: #2563eb;">🔧 طلب صيانة جديد</h2>
        <p>مرحباً،</p>
        <p>لديك طلب صيانة جديد متاح:</p>
        <div style="background: #eff6ff; padding: 20px; border-radius: 8px; margin: 15px 0; border-right: 4px solid #2563eb;">
          <p><strong>نوع الخدمة:</strong> ` + esc(or(d.JobType, "صيانة عامة")) + `</p>
          <p><strong>العنوان:</strong> ` + esc(or(d.RequestTitle, "طلب صيانة")) + `</p>
          <p><strong>المسافة:</strong> ` + esc(or(d.Distance, "?")) + ` كم</p>
          ` + optionalLine("الموقع", d.PropertyName) + `
        </div>
        <a href="https://uberfix.shop/technician/requests"
           style="display: inline-block; background: #2563eb; color: white; padding: 12px 24px; border-radius: 6px; text-decoration: none; font-weight: bold;">
          عرض التفاصيل والقبول
        </a>
        <p style="margin-top: 15px; color: #6b7280; font-size: 14px;">⏱️ يرجى الرد في أقرب وقت ممكن</p>`)
		},
	},
}

// EventTypes lists every known event type.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(templates))
	for t := range templates {
		out = append(out, t)
	}
	return out
}

// render returns the text body used for SMS and WhatsApp.
func (t Template) render(d Data) string {
	return strings.TrimSpace(t.Message(d))
}
