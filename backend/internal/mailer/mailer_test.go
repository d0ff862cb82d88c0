package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Console without an API key", func(t *testing.T) {
		assert.IsType(t, &Console{}, New("", "LMS", "no-reply@lms.local"))
	})

	t.Run("SendGrid with an API key", func(t *testing.T) {
		m, ok := New("SG.key", "LMS", "no-reply@lms.local").(*sendGridMailer)
		require.True(t, ok)
		assert.Equal(t, "[LMS] ", m.subjPrefix)
		assert.Equal(t, "no-reply@lms.local", m.from.Address)
	})
}

func TestConsoleKeepsNoHistory(t *testing.T) {
	console := NewConsole("LMS")
	before := *console

	for i := 0; i < 1000; i++ {
		require.NoError(t, console.Send(context.Background(), Message{
			ToName: "Student", ToAddress: "student@example.com", Subject: "Grade posted", Text: "90/100",
		}))
	}

	assert.Equal(t, before, *console)
}
