package emailsvc

import (
	"bytes"
	"encoding/json"
	"net/mail"
	"testing"

	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/pesantren/core"
)

func TestConsoleService(t *testing.T) {
	var out bytes.Buffer
	svc := newConsoleService(core.DefaultConfig(), &out)

	svc.SendMessages(
		&core.EmailMessage{
			To:      []mail.Address{{Name: "Ustadz Ahmad", Address: "ahmad@pesantren.id"}},
			Subject: "Kata sandi Anda telah diubah",
			Body:    "Kata sandi akun Anda baru saja diubah.",
		},
		&core.EmailMessage{Subject: "no recipient", Body: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "budi@pesantren.id"}}, Subject: "no body"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Kata sandi Anda telah diubah", sent[0].Subject)
	assert.Contains(t, out.String(), "Subject: [Pesantren] Kata sandi Anda telah diubah")
	assert.Contains(t, out.String(), `To: "Ustadz Ahmad" <ahmad@pesantren.id>`)
	assert.Contains(t, out.String(), "Kata sandi akun Anda baru saja diubah.")
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.DefaultConfig()
	svc := NewSendgridService(conf, nil)

	m := svc.prepare(core.EmailMessage{
		To:      []mail.Address{{Name: "Ustadz Ahmad", Address: "ahmad@pesantren.id"}},
		Bcc:     []mail.Address{{Address: "admin@pesantren.id"}},
		Subject: "Selamat datang",
		Body:    "Assalamu'alaikum",
	})

	var body struct {
		From             sgmail.Email `json:"from"`
		Personalizations []struct {
			To      []sgmail.Email `json:"to"`
			Bcc     []sgmail.Email `json:"bcc"`
			Subject string         `json:"subject"`
		} `json:"personalizations"`
		Content []sgmail.Content `json:"content"`
	}
	require.NoError(t, json.Unmarshal(sgmail.GetRequestBody(m), &body))
	assert.Equal(t, "noreply@localhost", body.From.Address)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[Pesantren] Selamat datang", body.Personalizations[0].Subject)
	assert.Equal(t, "ahmad@pesantren.id", body.Personalizations[0].To[0].Address)
	assert.Equal(t, "admin@pesantren.id", body.Personalizations[0].Bcc[0].Address)
	require.Len(t, body.Content, 1)
	assert.Equal(t, "text/plain", body.Content[0].Type)
}
