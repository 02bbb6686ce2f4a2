package agent

import "strings"

// DefaultPersona is the system instruction used when none is configured.
// {name} is replaced with the display name.
const DefaultPersona = `You are {name}, replying on WhatsApp.
- Use the conversation history for context.
- Each incoming line starts with the speaker for information, but only output the message itself.
- Reply to the MOST RECENT message specifically.
- Be very brief, no more than 20 words, and informal.
- Avoid multi-paragraph messages.
- Do not include meta text (like "friendly reply"). Only output the message you would send.`

// SystemPrompt returns the persona with the display name substituted. An empty
// persona gives DefaultPersona.
func SystemPrompt(persona, name string) string {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	if name == "" {
		name = "the user"
	}
	return strings.ReplaceAll(persona, "{name}", name)
}

// incomingText formats an incoming message for the model.
func incomingText(sender, text string) string {
	if sender == "" {
		return text
	}
	return "From " + sender + ": " + text
}
