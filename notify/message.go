package notify

import (
	"bytes"
	"math"
	"strings"
	"text/template"
	"time"
)

var (
	emailSubject = "Pension portal password reset"

	emailBody = template.Must(template.New("email").Parse(
		`Your password reset code is {{.Code}}.

It expires in {{.Minutes}} minutes. If you did not ask to reset your
password, ignore this message; your password has not been changed.
`))

	smsBody = template.Must(template.New("sms").Parse(
		`Pension portal code: {{.Code}}. Valid {{.Minutes}} min. Do not share it.`))
)

type messageData struct {
	Code    string
	Minutes int
}

func render(t *template.Template, code string, validFor time.Duration) (string, error) {
	var buf bytes.Buffer
	err := t.Execute(&buf, messageData{
		Code:    code,
		Minutes: int(math.Ceil(validFor.Minutes())),
	})
	return buf.String(), err
}

// maskDestination keeps just enough of an address for an operator to
// recognise it in logs.
func maskDestination(dest string) string {
	if at := strings.LastIndexByte(dest, '@'); at > 0 {
		return dest[:1] + "***" + dest[at:]
	}
	if len(dest) > 4 {
		return "***" + dest[len(dest)-4:]
	}
	return "***"
}
