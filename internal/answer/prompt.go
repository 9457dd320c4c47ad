package answer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholders substituted by Template.Build.
const (
	ContextPlaceholder = "{{context}}"
	QueryPlaceholder   = "{{query}}"
)

// Replies are the fixed, pre-approved strings returned instead of generated text.
type Replies struct {
	EmptyQuery    string `yaml:"empty_query"`
	Greeting      string `yaml:"greeting"`
	Unavailable   string `yaml:"unavailable"`
	Clarify       string `yaml:"clarify"`
	KannadaHint   string `yaml:"kannada_hint"`
	SpeakFallback string `yaml:"speak_fallback"`
}

// Template is a named prompt variant together with the replies and greeting
// set that go with its target language.
type Template struct {
	Name      string   `yaml:"name"`
	Language  string   `yaml:"language"`
	Text      string   `yaml:"template"`
	Greetings []string `yaml:"greetings"`
	Replies   Replies  `yaml:"replies"`
	// StopTokens are answer labels the model tends to repeat; they are
	// removed literally, in order, along with the sanitizer's built-in set.
	StopTokens []string `yaml:"stop_tokens"`
}

// Build substitutes the retrieved context (may be empty) and the verbatim
// query into the template.
func (t Template) Build(query, context string) string {
	r := strings.NewReplacer(ContextPlaceholder, context, QueryPlaceholder, query)
	return strings.TrimSpace(r.Replace(t.Text))
}

const teluguPrompt = `మీరు "తెలంగాణ గ్రామ డిజిటల్ సేవల" సహాయకుడు.

లక్ష్యం: పౌరులకు ప్రభుత్వ సేవలు/ఫిర్యాదులు/అర్జీలు గురించి **చర్యలకు ఉపయోగపడే** మార్గదర్శనం ఇవ్వడం.

కఠిన నియమాలు:
- సమాధానం పూర్తిగా తెలుగులోనే ఇవ్వాలి.
- 3 నుంచి 6 బుల్లెట్ పాయింట్లలో మాత్రమే ఇవ్వాలి.
- యాదృచ్ఛిక కోడ్, గణితం, హ్యాష్‌లు, ఐడీలు, అసంబద్ధ పదాలు ఇవ్వకూడదు.
- "సందర్భం" లో లేని విషయం ఊహించకూడదు.
- అవసరమైన సమాచారం లేకపోతే చివరలో 1 లేదా 2 ప్రశ్నలు మాత్రమే అడగాలి (ఉదా: గ్రామం/మండలం/వార్డు, సమస్య ఎప్పటి నుంచి, సంప్రదింపు నంబర్).

సందర్భం (ఉంటే మాత్రమే, లేకపోతే ఖాళీగా ఉంటుంది):
{{context}}

ప్రశ్న:
{{query}}

సమాధానం (బుల్లెట్ పాయింట్లలో):
-`

const englishPrompt = `You are the assistant for the "Village Digital Services" portal.

Goal: give citizens actionable guidance about government services, complaints and applications.

Strict rules:
- Answer in English only.
- Answer in 3 to 6 bullet points only.
- Never output random codes, math, hashes, IDs or meaningless words.
- Do not invent anything that is not in the "Context".
- If required information is missing, ask at most 1 or 2 questions at the end (for example: village/mandal/ward, since when the problem exists, a contact number).

Context (only if available, otherwise empty):
{{context}}

Question:
{{query}}

Answer (in bullet points):
-`

var builtinTemplates = map[string]Template{
	"telugu": {
		Name:       "telugu",
		Language:   "te",
		Text:       teluguPrompt,
		Greetings:  []string{"hi", "hello", "hey", "namaste", "namaskaram", "నమస్కారం"},
		StopTokens: []string{"సమాధానం (బుల్లెట్ పాయింట్లలో):", "సమాధానం:"},
		Replies: Replies{
			EmptyQuery:    "దయచేసి మీ సమస్యను వివరంగా టైప్ చేయండి.",
			Greeting:      "హాయ్! మీకు ఏ ప్రభుత్వ సేవ లేదా ఫిర్యాదులో సహాయం కావాలి?",
			Unavailable:   "క్షమించండి, ప్రస్తుతం సమాధానం ఇవ్వడంలో సమస్య ఎదురైంది. దయచేసి మరోసారి ప్రయత్నించండి.",
			Clarify:       "దయచేసి సమస్యను మరింత వివరంగా చెప్పండి (స్థలం/గ్రామం/మండలం, సమస్య ఎప్పటి నుంచి).",
			KannadaHint:   "గమనిక: మీరు కన్నడలో టైప్ చేశారు. మీ సమస్యను వీలైతే తెలుగులో లేదా ఇంగ్లీషులో కూడా పంపండి.",
			SpeakFallback: "దయచేసి మీ సమస్యను మరింత వివరంగా చెప్పండి.",
		},
	},
	"english": {
		Name:       "english",
		Language:   "en",
		Text:       englishPrompt,
		Greetings:  []string{"hi", "hello", "hey", "namaste"},
		StopTokens: []string{"Answer (in bullet points):", "Answer:"},
		Replies: Replies{
			EmptyQuery:    "Please describe your issue in detail.",
			Greeting:      "Hi! Which government service or complaint can I help you with?",
			Unavailable:   "Sorry, the service is temporarily unavailable. Please try again.",
			Clarify:       "Please share more details (place/village/mandal, and how long the issue has persisted).",
			KannadaHint:   "Note: you typed in Kannada. If possible, please also send your issue in Telugu or English.",
			SpeakFallback: "Please describe your issue in more detail.",
		},
	},
}

// Templates is a registry of named prompt variants.
type Templates map[string]Template

// BuiltinTemplates returns a fresh copy of the compiled-in variants.
func BuiltinTemplates() Templates {
	out := make(Templates, len(builtinTemplates))
	for name, t := range builtinTemplates {
		out[name] = t
	}
	return out
}

// Lookup returns the named variant.
func (ts Templates) Lookup(name string) (Template, error) {
	t, ok := ts[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown prompt variant %q", name)
	}
	return t, nil
}

type templateFile struct {
	Variants []Template `yaml:"variants"`
}

// LoadTemplates returns the built-in variants merged with those defined in the
// YAML file at path. A file variant replaces a built-in one of the same name;
// replies it leaves empty are taken from the english variant.
func LoadTemplates(path string) (Templates, error) {
	ts := BuiltinTemplates()
	if path == "" {
		return ts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt templates: %w", err)
	}
	return mergeTemplates(ts, data)
}

func mergeTemplates(ts Templates, data []byte) (Templates, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	for i, v := range file.Variants {
		if v.Name == "" {
			return nil, fmt.Errorf("prompt variant %d has no name", i)
		}
		if !strings.Contains(v.Text, QueryPlaceholder) {
			return nil, fmt.Errorf("prompt variant %q does not contain %s", v.Name, QueryPlaceholder)
		}
		v.Replies = fillReplies(v.Replies, builtinTemplates["english"].Replies)
		if len(v.Greetings) == 0 {
			v.Greetings = builtinTemplates["english"].Greetings
		}
		ts[v.Name] = v
	}
	return ts, nil
}

func fillReplies(r, def Replies) Replies {
	pick := func(v, d string) string {
		if strings.TrimSpace(v) == "" {
			return d
		}
		return v
	}
	return Replies{
		EmptyQuery:    pick(r.EmptyQuery, def.EmptyQuery),
		Greeting:      pick(r.Greeting, def.Greeting),
		Unavailable:   pick(r.Unavailable, def.Unavailable),
		Clarify:       pick(r.Clarify, def.Clarify),
		KannadaHint:   pick(r.KannadaHint, def.KannadaHint),
		SpeakFallback: pick(r.SpeakFallback, def.SpeakFallback),
	}
}
