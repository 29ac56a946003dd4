package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/etda/school/core"
	testutil "github.com/etda/school/tests"
)

func TestConsoleService_sendMessage(t *testing.T) {
	conf := testutil.NewConfig()
	out := new(bytes.Buffer)
	svc := &consoleService{
		conf:       conf,
		logger:     testutil.NewLogger(conf, false),
		out:        out,
		subjPrefix: "[ETDA] ",
	}
	to := []mail.Address{{Name: "Zoe Lima", Address: "zoe@etda.test"}}

	t.Run("no recipient", func(t *testing.T) {
		out.Reset()
		assert.False(t, svc.sendMessage(&core.EmailMessage{Subject: "Hi", BodyStr: "hello"}))
		assert.Empty(t, out.String())
	})

	t.Run("no content", func(t *testing.T) {
		out.Reset()
		assert.False(t, svc.sendMessage(&core.EmailMessage{To: to, Subject: "Hi"}))
		assert.Empty(t, out.String())
	})

	t.Run("templated", func(t *testing.T) {
		out.Reset()
		msg := &core.EmailMessage{
			To:           to,
			Subject:      "Welcome",
			TemplateName: "welcome",
			TemplateData: map[string]string{"Name": "Zoe Lima", "Email": "zoe@etda.test", "Role": "student"},
		}
		if !assert.True(t, svc.sendMessage(msg)) {
			return
		}
		got := out.String()
		assert.Contains(t, got, "Subject: [ETDA] Welcome\r\n")
		assert.Contains(t, got, `To: "Zoe Lima" <zoe@etda.test>`)
		assert.Contains(t, got, "Content-Type: text/plain; charset=utf-8")
		assert.Contains(t, got, "Content-Type: text/html; charset=utf-8")
		assert.Contains(t, got, "Hello Zoe Lima")
	})

	t.Run("attachment", func(t *testing.T) {
		out.Reset()
		msg := &core.EmailMessage{To: to, Subject: "Report", BodyStr: "see attached"}
		if !assert.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "report.csv", "text/csv")) {
			return
		}
		if !assert.True(t, svc.sendMessage(msg)) {
			return
		}
		got := out.String()
		assert.Contains(t, got, `Content-Disposition: attachment; filename="report.csv"`)
		assert.Contains(t, got, "YSxiCjEsMgo=")
	})
}

func TestConsoleServiceMock(t *testing.T) {
	conf := testutil.NewConfig()
	svc := NewConsoleServiceMock(conf, testutil.NewLogger(conf, false))
	to := []mail.Address{{Address: "zoe@etda.test"}}

	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "one", BodyStr: "1"},
		&core.EmailMessage{Subject: "dropped", BodyStr: "2"},
		&core.EmailMessage{To: to, Subject: "three", BodyStr: "3"},
	)
	sent := svc.SentMessages()
	if assert.Len(t, sent, 2) {
		assert.Equal(t, "one", sent[0].Subject)
		assert.Equal(t, "three", sent[1].Subject)
		assert.Equal(t, "3", sent[1].TextContent)
	}

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}
