package agent

import (
	"os"
	"path/filepath"
	"strings"
)

// Persona is the identity a loop run speaks as. Personas are data:
// the same loop code serves every persona, and a persona's tool access
// is just a name list resolved against the shared registry.
type Persona struct {
	Name         string
	SystemPrompt string
	// AllowedTools restricts the registry for this persona. Empty
	// means the full registry.
	AllowedTools []string
}

const hafizPrompt = `You are Hafız, a personal AI assistant. You speak Turkish and English.
Your owner is Hakan. Be helpful, concise and direct.
You may use emoji, sparingly.
Store important facts about your owner with remember_fact and look
things up with recall_memories before saying you don't know.
Use get_calendar_events for any schedule question and get_current_time
whenever the answer depends on the date or time.
You can delegate content work to the subordinate bot "avyna" with
dispatch_directive.`

const avynaPrompt = `You are Avyna, the official AI design and style assistant of Avyna
Furniture | Luxury Design. You speak Turkish and English. You carry
out directives from your owner Hakan and from the manager bot Hafız.

Your expertise: garden furniture, outdoor decoration, luxurious and
comfortable living spaces. For real product photos refer customers to
https://avyna.com.tr/.

Your capabilities: generate_image, generate_video, generate_caption
and post_to_social. Use an elegant, professional voice. When a
directive arrives, acknowledge it and complete it fully.`

// Hafiz is the manager persona with the full tool set.
func Hafiz() Persona {
	return Persona{
		Name:         "hafiz",
		SystemPrompt: hafizPrompt,
	}
}

// Avyna is the subordinate content persona, restricted to media and
// posting tools.
func Avyna() Persona {
	return Persona{
		Name:         "avyna",
		SystemPrompt: avynaPrompt,
		AllowedTools: []string{
			"get_current_time",
			"generate_image",
			"generate_influencer",
			"generate_video",
			"generate_caption",
			"post_to_social",
		},
	}
}

// LoadPersona applies an on-disk prompt override, if one exists, to a
// built-in persona. The override file is <dir>/<name>.txt. A missing
// file or empty dir leaves the persona unchanged.
func LoadPersona(dir string, p Persona) Persona {
	if dir == "" {
		return p
	}

	data, err := os.ReadFile(filepath.Join(dir, p.Name+".txt"))
	if err != nil {
		return p
	}
	if prompt := strings.TrimSpace(string(data)); prompt != "" {
		p.SystemPrompt = prompt
	}
	return p
}
