package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"
	texttmpl "text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendance/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

var tmpl = texttmpl.Must(texttmpl.New("t").Parse("{{.Present}} present"))

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, nopLogger{})
	to := []mail.Address{{Address: "lecturer@test.cd"}}

	withAttachment := &core.EmailMessage{To: to, Subject: "sheet"}
	require.NoError(t, withAttachment.Attach(strings.NewReader("PK"), "attendance.xlsx", "application/zip"))

	tests := []struct {
		name     string
		msg      *core.EmailMessage
		wantSent bool
		wantText string
	}{
		{name: "plain body", msg: &core.EmailMessage{To: to, BodyStr: "hello"}, wantSent: true, wantText: "hello"},
		{
			name:     "template",
			msg:      &core.EmailMessage{To: to, Template: tmpl, TemplateData: map[string]int{"Present": 3}},
			wantSent: true,
			wantText: "3 present",
		},
		{name: "attachment only", msg: withAttachment, wantSent: true},
		{name: "no recipients", msg: &core.EmailMessage{BodyStr: "hello"}},
		{name: "no content", msg: &core.EmailMessage{To: to}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ClearSentMessages()
			svc.SendMessages(tt.msg)
			if !tt.wantSent {
				assert.Empty(t, SentMessages)
				return
			}
			require.Len(t, SentMessages, 1)
			assert.Equal(t, tt.wantText, SentMessages[0].TextContent)
		})
	}
}

func TestConsoleService_Wait(t *testing.T) {
	var out bytes.Buffer
	svc := NewConsoleService(core.NewTestConfig(), nopLogger{}).(*consoleService)
	svc.out = &out
	ClearSentMessages()

	to := []mail.Address{{Address: "lecturer@test.cd"}}
	svc.SendMessages(&core.EmailMessage{To: to, Subject: "Attendance - Lab 1", BodyStr: "hello"})
	svc.Wait()

	assert.Len(t, SentMessages, 1)
	assert.Contains(t, out.String(), "Subject: ["+core.NewTestConfig().AppName+"] Attendance - Lab 1\r\n")
}

func TestConsoleService_send(t *testing.T) {
	var out bytes.Buffer
	svc := consoleService{
		defaultFromEmail: mail.Address{Name: "Attendance", Address: "noreply@test.cd"},
		subjPrefix:       "[Attendance] ",
		out:              &out,
		logger:           nopLogger{},
	}
	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Lecturer", Address: "lecturer@test.cd"}},
		Subject:     "Attendance - Lab 1",
		TextContent: "3 of 4 students present",
	}
	require.NoError(t, msg.Attach(strings.NewReader("PK"), "attendance.xlsx", "application/zip"))
	require.NoError(t, svc.send(msg))

	got := out.String()
	assert.Contains(t, got, "Subject: [Attendance] Attendance - Lab 1\r\n")
	assert.Contains(t, got, `To: "Lecturer" <lecturer@test.cd>`)
	assert.Contains(t, got, "3 of 4 students present")
	assert.Contains(t, got, `attachment; filename="attendance.xlsx"`)
	assert.Contains(t, got, "UEs=") // base64("PK")
	assert.NotContains(t, got, "Cc:")
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, nopLogger{}).(*sendgridService)

	msg := core.EmailMessage{
		To:      []mail.Address{{Address: "a@test.cd"}, {Address: "b@test.cd"}},
		Cc:      []mail.Address{{Address: "c@test.cd"}},
		Subject: "Attendance - Lab 1",
	}
	require.NoError(t, msg.Attach(strings.NewReader("PK"), "attendance.xlsx", "application/zip"))

	m := svc.prepare(msg)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "["+conf.AppName+"] Attendance - Lab 1", p.Subject)
	assert.Len(t, p.To, 2)
	assert.Len(t, p.CC, 1)
	assert.Equal(t, conf.DefaultFromEmail.Address, m.From.Address)
	require.Len(t, m.Content, 1)
	assert.Equal(t, " ", m.Content[0].Value)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "UEs=", m.Attachments[0].Content)
	assert.Equal(t, "attendance.xlsx", m.Attachments[0].Filename)
}
