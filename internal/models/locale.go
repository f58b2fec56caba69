package models

import "strings"

// Locale selects the language of the user-facing messages.
type Locale string

const (
	// LocaleEnglish is the default locale.
	LocaleEnglish Locale = "en"
	// LocaleDutch renders every message in Dutch.
	LocaleDutch Locale = "nl"
)

// Messages holds every fixed user-facing text shown by the controller.
type Messages struct {
	// MissingElements is shown when the page lacks one of the required surfaces.
	MissingElements string
	// ConfigErrorLabel replaces the submit control label when the API key is absent.
	ConfigErrorLabel string
	// ConfigErrorGuidance is markdown explaining how to supply the API key. Every %[1]s verb is replaced
	// with the name of the environment variable.
	ConfigErrorGuidance string
	// GenerationFailed is shown in place of the response when a request fails.
	GenerationFailed string
}

var messagesByLocale = map[Locale]Messages{
	LocaleEnglish: {
		MissingElements:  "Error: the application could not start because required page elements are missing.",
		ConfigErrorLabel: "Configuration Error",
		ConfigErrorGuidance: "**Error: API key is missing.**\n\n" +
			"The application cannot work because the API key is not set in the hosting environment.\n\n" +
			"If you operate this site, set the `%[1]s` environment variable before starting the server, " +
			"for example in a `.env` file next to the binary:\n\n" +
			"```sh\nexport %[1]s=<your key>\n```\n",
		GenerationFailed: "Error: Could not generate response. See the server log for details.",
	},
	LocaleDutch: {
		MissingElements:  "Fout: Kan de applicatie niet initialiseren vanwege ontbrekende HTML-elementen.",
		ConfigErrorLabel: "Configuratie Fout",
		ConfigErrorGuidance: "**Fout: API Sleutel ontbreekt.**\n\n" +
			"De applicatie kan niet werken omdat de API-sleutel niet is ingesteld in de hostingomgeving.\n\n" +
			"Als u de eigenaar van de site bent, stel dan de omgevingsvariabele `%[1]s` in voordat de server start, " +
			"bijvoorbeeld in een `.env` bestand naast het programma:\n\n" +
			"```sh\nexport %[1]s=<uw sleutel>\n```\n",
		GenerationFailed: "Fout: Kon geen antwoord genereren. Zie het serverlog voor details.",
	},
}

// ParseLocale maps a language tag such as "nl-NL" to a supported Locale. Unknown tags fall back to
// LocaleEnglish.
func ParseLocale(tag string) Locale {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(tag)), "-")
	l := Locale(base)
	if _, ok := messagesByLocale[l]; ok {
		return l
	}
	return LocaleEnglish
}

// MessagesFor returns the messages of the given locale, or the English ones if it is unknown.
func MessagesFor(l Locale) Messages {
	if m, ok := messagesByLocale[l]; ok {
		return m
	}
	return messagesByLocale[LocaleEnglish]
}
