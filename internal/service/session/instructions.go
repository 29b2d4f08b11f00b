package session

import (
	"fmt"

	"realtime-commerce-assistant/internal/service/language"
)

type locale struct {
	name     string
	greeting string
}

var locales = map[string]locale{
	"en": {"English", "Greet the customer briefly and ask what they are shopping for today."},
	"es": {"Spanish", "Saluda brevemente al cliente y pregúntale qué está buscando hoy."},
	"fr": {"French", "Salue brièvement le client et demande-lui ce qu'il cherche aujourd'hui."},
	"de": {"German", "Begrüße den Kunden kurz und frage, wonach er heute sucht."},
	"it": {"Italian", "Saluta brevemente il cliente e chiedigli cosa sta cercando oggi."},
	"pt": {"Portuguese", "Cumprimente o cliente brevemente e pergunte o que ele procura hoje."},
}

func localeFor(code string) locale {
	if l, ok := locales[code]; ok {
		return l
	}
	return locales[language.Default]
}

// Instructions returns the assistant instructions for a language.
func Instructions(code string) string {
	l := localeFor(code)
	return fmt.Sprintf(`You are a friendly shopping assistant for an online store.
Speak %s unless the customer switches language, then follow them.
Keep answers short and conversational.
When you recommend products, call send_product_metadata with their SKUs and a one-sentence reasoning.
When the customer wants to see a product, call show_multimedia or show_3d. Call hide_multimedia or hide_3d when they are done.
Only reference SKUs that exist in the catalog.`, l.name)
}

// GreetingCommand returns the hidden message that makes the assistant open
// the conversation.
func GreetingCommand(code string) string {
	return localeFor(code).greeting
}
