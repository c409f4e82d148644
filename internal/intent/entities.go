package intent

import (
	"regexp"
	"strings"

	prose "github.com/jdkato/prose/v2"
)

var currencyPattern = regexp.MustCompile(`\$\d+(?:\.\d{2})?`)

// relativeTimeVocab is matched as substrings, first match wins, so
// longer expressions must precede the expressions they contain.
var relativeTimeVocab = []string{
	"day after tomorrow",
	"tomorrow",
	"tonight",
	"today",
	"yesterday",
	"this weekend",
	"this week",
	"next week",
	"this month",
	"next month",
	"monday",
	"tuesday",
	"wednesday",
	"thursday",
	"friday",
	"saturday",
	"sunday",
}

func extractEntities(raw string) map[string]string {
	entities := make(map[string]string)

	lower := strings.ToLower(raw)
	for _, expr := range relativeTimeVocab {
		if strings.Contains(lower, expr) {
			entities["time"] = expr
			break
		}
	}

	if m := currencyPattern.FindString(raw); m != "" {
		entities["amount"] = m
	}

	tagNamedEntities(raw, entities)

	if len(entities) == 0 {
		return nil
	}
	return entities
}

func tagNamedEntities(raw string, entities map[string]string) {
	doc, err := prose.NewDocument(raw, prose.WithSegmentation(false))
	if err != nil {
		// Classification never fails; just skip tagged entities.
		return
	}
	for _, ent := range doc.Entities() {
		switch ent.Label {
		case "PERSON":
			setIfAbsent(entities, "person", ent.Text)
		case "GPE":
			setIfAbsent(entities, "place", ent.Text)
		case "ORG", "ORGANIZATION":
			setIfAbsent(entities, "organization", ent.Text)
		}
	}
}

func setIfAbsent(entities map[string]string, key, value string) {
	if _, ok := entities[key]; !ok {
		entities[key] = value
	}
}
