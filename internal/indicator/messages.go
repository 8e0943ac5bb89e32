package indicator

import (
	"os"
	"strings"
)

// messages are the notification texts for one UI language.
type messages struct {
	recording  string
	processing string
	errorText  string
}

var catalog = map[string]messages{
	"en": {recording: "Recording…", processing: "Translating…", errorText: "Relay failed"},
	"es": {recording: "Grabando…", processing: "Traduciendo…", errorText: "Falló la retransmisión"},
}

// messagesForEnv follows the POSIX lookup order LC_ALL, LC_MESSAGES, LANG.
func messagesForEnv(getenv func(string) string) messages {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return messagesFor(v)
		}
	}
	return catalog["en"]
}

// messagesFor maps a locale such as "es_MX.UTF-8" to its catalog entry.
// Unknown languages get English.
func messagesFor(locale string) messages {
	lang, _, _ := strings.Cut(strings.ToLower(locale), "_")
	lang, _, _ = strings.Cut(lang, ".")
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog["en"]
}

func indicatorMessagesFromEnv() messages {
	return messagesForEnv(os.Getenv)
}
