package email

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/comms-notebook/internal/config"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
)

func TestFromHeader(t *testing.T) {
	assert.Equal(t, "Reportes <no-reply@school.test>", FromHeader("Reportes", "no-reply@school.test"))
	assert.Equal(t, "no-reply@school.test", FromHeader("", "no-reply@school.test"))
}

func TestNewSMTPServiceResolvesServiceHost(t *testing.T) {
	s, err := NewSMTPService(config.SMTPConfig{Service: "Outlook365", Port: 587}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "smtp.office365.com", s.Host())

	_, err = NewSMTPService(config.SMTPConfig{Service: "nope", Port: 587}, logger.Nop())
	assert.Error(t, err)
}

func TestSMTPServiceSenderHeader(t *testing.T) {
	tests := []struct {
		name     string
		fromName string
		want     string
	}{
		{name: "ascii name", fromName: "Reportes", want: `From: "Reportes" <reportes@school.test>`},
		{name: "accented name", fromName: "Escuela Técnica Henry Ford", want: "From: =?UTF-8?q?Escuela_T=C3=A9cnica_Henry_Ford?= <reportes@school.test>"},
		{name: "no name", fromName: "", want: "From: reportes@school.test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				gotFrom string
				gotTo   []string
				raw     strings.Builder
			)
			sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
				gotFrom, gotTo = from, to
				_, err := msg.WriteTo(&raw)
				return err
			})

			s, err := NewSMTPService(config.SMTPConfig{Host: "smtp.school.test", Port: 587}, logger.Nop())
			require.NoError(t, err)
			s.send = func(m ...*gomail.Message) error { return gomail.Send(sender, m...) }

			err = s.Send(context.Background(), Message{
				To:       []string{"direccion@school.test"},
				From:     "reportes@school.test",
				FromName: tt.fromName,
				Subject:  "Reporte diario de comunicaciones",
				HTML:     "<p>hola</p>",
			})
			require.NoError(t, err)
			assert.Equal(t, "reportes@school.test", gotFrom)
			assert.Equal(t, []string{"direccion@school.test"}, gotTo)
			assert.Contains(t, raw.String(), tt.want+"\r\n")
		})
	}
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("smtp down")
	r := &Recorder{Fail: func(m Message) error {
		if m.Subject == "bad" {
			return boom
		}
		return nil
	}}

	assert.ErrorIs(t, r.Send(ctx, Message{From: "a@b.c", Subject: "x"}), ErrNoRecipients)
	assert.ErrorIs(t, r.Send(ctx, Message{To: []string{"d@e.f"}, From: "a@b.c", Subject: "bad"}), boom)
	require.NoError(t, r.Send(ctx, Message{To: []string{"d@e.f"}, From: "a@b.c", Subject: "ok"}))

	sent := r.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ok", sent[0].Subject)
}

func TestLogServiceRequiresSender(t *testing.T) {
	s := NewLogService(logger.Nop())
	assert.Error(t, s.Send(context.Background(), Message{To: []string{"d@e.f"}}))
	assert.NoError(t, s.Send(context.Background(), Message{To: []string{"d@e.f"}, From: "a@b.c"}))
}
