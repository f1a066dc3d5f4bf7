// Package roster holds the fixed cast of the office: six personas, the
// phrase templates each of them speaks in and the shared task vocabulary.
package roster

import "agent_office/internal/domain"

const (
	TaskPlaceholder  = "{task}"
	OtherPlaceholder = "{other}"

	fallbackIcon = "🤖"
)

type Entry struct {
	Persona      domain.Persona
	Updates      []string
	Coordination []string
}

type Roster struct {
	Entries []Entry
	Tasks   []string
}

func (r Roster) Personas() []domain.Persona {
	out := make([]domain.Persona, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, e.Persona)
	}
	return out
}

func (r Roster) Lookup(id string) (domain.Persona, bool) {
	for _, e := range r.Entries {
		if e.Persona.ID == id {
			return e.Persona, true
		}
	}
	return domain.Persona{}, false
}

// Icon returns the persona's emoji, or a generic robot for unknown ids.
func (r Roster) Icon(id string) string {
	p, ok := r.Lookup(id)
	if !ok || p.Icon == "" {
		return fallbackIcon
	}
	return p.Icon
}

func Default() Roster {
	return Roster{
		Entries: []Entry{
			{
				Persona: domain.Persona{
					ID:          "monica",
					Name:        "Monica Geller",
					Show:        "Friends",
					Role:        "Chief of Staff",
					Personality: "Organized, decisive, keeps everyone aligned and accountable.",
					Color:       "#E9706C",
					Avatar:      "/avatars/monica.jpg",
					Icon:        "👩‍💼",
				},
				Updates: []string{
					"Daily briefing is ready. Priorities locked: {task}.",
					"Following up: {task} is on track, dependencies cleared.",
					"Schedule update: blocked time for deep work 3–5pm.",
					"Standup summary sent. Accountability check complete.",
					"Ops note: Today’s top outcome is {task}.",
				},
				Coordination: []string{
					"Checking in with {other} to align on {task}.",
					"Sync request sent to {other} for today’s milestones.",
				},
			},
			{
				Persona: domain.Persona{
					ID:          "dwight",
					Name:        "Dwight Schrute",
					Show:        "The Office",
					Role:        "Research Lead",
					Personality: "Relentless, tactical, and brutally thorough in research.",
					Color:       "#D0A54A",
					Avatar:      "/avatars/dwight.jpg",
					Icon:        "🕵️",
				},
				Updates: []string{
					"Research complete. Three sources confirm: {task}.",
					"I compiled a 12-point analysis on {task}.",
					"Mission report: {task} is achievable within 72 hours.",
					"I have located the best tools for {task}.",
					"Competitive scan finished. Key insight: {task}.",
				},
				Coordination: []string{
					"I am forwarding research notes to {other}.",
					"I challenge {other} to verify sources on {task}.",
				},
			},
			{
				Persona: domain.Persona{
					ID:          "kelly",
					Name:        "Kelly Kapoor",
					Show:        "The Office",
					Role:        "Twitter Manager",
					Personality: "Trend-obsessed, fast, and highly engaging on social.",
					Color:       "#A36EF4",
					Avatar:      "/avatars/kelly.jpg",
					Icon:        "💅",
				},
				Updates: []string{
					"Tweet drafted: “{task}” — spicy and ready to post.",
					"Engagement spike detected. Riding the trend now.",
					"Thread scheduled. Timeline is hot tonight.",
					"DM replies cleared. Brand voice on point.",
					"New viral hook for {task} is queued.",
				},
				Coordination: []string{
					"Looping in {other} to make the post irresistible.",
					"Just told {other} the hook needs more sparkle.",
				},
			},
			{
				Persona: domain.Persona{
					ID:          "ross",
					Name:        "Ross Geller",
					Show:        "Friends",
					Role:        "Engineer",
					Personality: "Detail-oriented builder shipping features reliably.",
					Color:       "#6FA8DC",
					Avatar:      "/avatars/ross.jpg",
					Icon:        "🔬",
				},
				Updates: []string{
					"Shipped a new feature for Awesome LLM Apps: {task}.",
					"Refactor done. Performance improved 28%.",
					"Deploy complete. Monitoring logs now.",
					"Built a prototype for {task}.",
					"Integration tested and green across the board.",
				},
				Coordination: []string{
					"Pairing with {other} to ship {task}.",
					"FYI to {other}: API changes ready for review.",
				},
			},
			{
				Persona: domain.Persona{
					ID:          "pam",
					Name:        "Pam Beesly",
					Show:        "The Office",
					Role:        "Unwind AI",
					Personality: "Thoughtful, calming, and supportive with user care.",
					Color:       "#F7A072",
					Avatar:      "/avatars/pam.jpg",
					Icon:        "🎨",
				},
				Updates: []string{
					"Unwind AI daily flow updated: {task}.",
					"User feedback logged and categorized.",
					"Created a calming copy pack for today.",
					"Drafted a weekly care plan: {task}.",
					"Support queue cleared with empathy templates.",
				},
				Coordination: []string{
					"Sharing calm-language draft with {other}.",
					"Asked {other} to review tone for {task}.",
				},
			},
			{
				Persona: domain.Persona{
					ID:          "rachel",
					Name:        "Rachel Green",
					Show:        "Friends",
					Role:        "LinkedIn Manager",
					Personality: "Polished, brand-savvy, and growth-focused.",
					Color:       "#5FBF8A",
					Avatar:      "/avatars/rachel.svg",
					Icon:        "💼",
				},
				Updates: []string{
					"LinkedIn post scheduled. Theme: {task}.",
					"Optimized profile headline and keywords.",
					"Connection outreach plan prepared.",
					"New carousel draft in progress.",
					"Engagement checklist done; comments queued.",
				},
				Coordination: []string{
					"Reviewing messaging with {other} for brand fit.",
					"Pinged {other} to align on outreach cadence.",
				},
			},
		},
		Tasks: []string{
			"launch sequence",
			"onboarding flow",
			"weekly recap",
			"growth experiment",
			"customer interview",
			"feature polish",
			"content calendar",
			"automation cleanup",
			"performance audit",
			"product roadmap",
		},
	}
}
