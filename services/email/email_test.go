package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gamifica/core"
	logsvc "github.com/trezcool/gamifica/services/logger"
)

func testConf() *core.Config {
	return &core.Config{
		AppName:          "Gamifica",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Gamifica", Address: "noreply@localhost"},
		SendgridApiKey:   "sg-key",
	}
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConf(), logsvc.NewNopLogger()).(*sendgridService)
	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Hero", Address: "hero@test.cd"}},
		Bcc:         []mail.Address{{Address: "audit@test.cd"}},
		Subject:     "Hi",
		TextContent: "hello",
		HTMLContent: "<p>hello</p>",
	}

	m := svc.prepare(msg)
	assert.Equal(t, "noreply@localhost", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Gamifica] Hi", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "hero@test.cd", p.To[0].Address)
	assert.Empty(t, p.CC)
	require.Len(t, p.BCC, 1)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)

	msg.HTMLContent = ""
	assert.Len(t, svc.prepare(msg).Content, 1)
}

func TestConsoleServiceMock(t *testing.T) {
	logger := logsvc.NewNopLogger()
	core.ParseEmailTemplates(logger, true /* strict */)
	svc := NewConsoleServiceMock(testConf(), logger)

	welcome := &core.EmailMessage{
		To:           []mail.Address{{Name: "Hero", Address: "hero@test.cd"}},
		Subject:      "Welcome aboard!",
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{"Name": "Hero", "RU": "2024001"},
	}
	welcome.SetFrontendBaseURL("http://localhost:3000")
	noRecipient := &core.EmailMessage{Subject: "lost", BodyStr: "nobody reads this"}
	unknownTmpl := &core.EmailMessage{To: welcome.To, TemplateName: "nope"}

	svc.SendMessages(welcome, noRecipient, unknownTmpl)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "RU 2024001")
	assert.Contains(t, sent[0].TextContent, "http://localhost:3000/trails")
	assert.NotEmpty(t, sent[0].HTMLContent)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestJoinAddresses(t *testing.T) {
	assert.Equal(t, "", joinAddresses(nil))
	assert.Equal(t,
		`"Hero" <hero@test.cd>, <ace@test.cd>`,
		joinAddresses([]mail.Address{{Name: "Hero", Address: "hero@test.cd"}, {Address: "ace@test.cd"}}),
	)
}

func TestNew(t *testing.T) {
	logger := logsvc.NewNopLogger()

	tests := []struct {
		name     string
		debug    bool
		key      string
		sendgrid bool
	}{
		{name: "debug", debug: true, key: "sg-key"},
		{name: "no api key", key: ""},
		{name: "production", key: "sg-key", sendgrid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testConf()
			conf.Debug = tt.debug
			conf.SendgridApiKey = tt.key

			svc := New(conf, logger)
			_, isSendgrid := svc.(*sendgridService)
			_, isConsole := svc.(*consoleService)
			assert.Equal(t, tt.sendgrid, isSendgrid)
			assert.Equal(t, !tt.sendgrid, isConsole)
		})
	}
}
