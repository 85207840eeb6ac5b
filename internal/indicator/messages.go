package indicator

import (
	"os"
	"strings"
)

type messages struct {
	recording  string
	paused     string
	processing string
	errorText  string
}

// catalog is keyed by the language part of a POSIX locale.
var catalog = map[string]messages{
	"en": {
		recording:  "Recording visit…",
		paused:     "Recording paused",
		processing: "Finalizing transcript…",
		errorText:  "Voice capture error",
	},
	"es": {
		recording:  "Grabando consulta…",
		paused:     "Grabación en pausa",
		processing: "Finalizando transcripción…",
		errorText:  "Error de captura de voz",
	},
}

// messagesFromEnv picks the catalog entry for the first set of LC_ALL,
// LC_MESSAGES, and LANG.
func messagesFromEnv() messages {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
			return messagesFor(raw)
		}
	}
	return catalog["en"]
}

// messagesFor maps a locale such as "es_MX.UTF-8" onto the catalog, falling
// back to English.
func messagesFor(locale string) messages {
	lang := strings.ToLower(locale)
	if i := strings.IndexAny(lang, "_.@-"); i >= 0 {
		lang = lang[:i]
	}
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog["en"]
}
