package indicator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessagesForLocale(t *testing.T) {
	require.Equal(t, "Translating…", messagesFor("en_US.UTF-8").processing)
	require.Equal(t, "Grabando…", messagesFor("es_MX.UTF-8").recording)
	require.Equal(t, "Traduciendo…", messagesFor("es").processing)
	require.Equal(t, "Relay failed", messagesFor("fr_FR.UTF-8").errorText)
	require.Equal(t, "Recording…", messagesFor("C").recording)
}

func TestMessagesForEnvPrecedence(t *testing.T) {
	env := map[string]string{"LANG": "en_US.UTF-8", "LC_MESSAGES": "es_ES.UTF-8"}
	getenv := func(k string) string { return env[k] }
	require.Equal(t, "Grabando…", messagesForEnv(getenv).recording)

	env["LC_ALL"] = "en_GB.UTF-8"
	require.Equal(t, "Recording…", messagesForEnv(getenv).recording)

	require.Equal(t, "Recording…", messagesForEnv(func(string) string { return "" }).recording)
}
