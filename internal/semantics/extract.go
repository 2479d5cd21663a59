package semantics

import (
	"sort"
	"strings"
)

// TagsFor returns the canonical action/entity tags whose synonyms appear in
// text, case-insensitively, with the action tags first. The result order is
// deterministic (table key order is sorted).
func TagsFor(text string) []string {
	lowered := strings.ToLower(text)
	var tags []string
	for _, tag := range sortedKeys(ActionSynonyms) {
		if containsAny(lowered, ActionSynonyms[tag]) {
			tags = append(tags, "action:"+tag)
		}
	}
	for _, tag := range sortedKeys(EntitySynonyms) {
		if containsAny(lowered, EntitySynonyms[tag]) {
			tags = append(tags, "entity:"+tag)
		}
	}
	return tags
}

// ActionsFor returns just the canonical action tags matched in text.
func ActionsFor(text string) []string {
	lowered := strings.ToLower(text)
	var actions []string
	for _, tag := range sortedKeys(ActionSynonyms) {
		if containsAny(lowered, ActionSynonyms[tag]) {
			actions = append(actions, tag)
		}
	}
	return actions
}

// EntitiesFor returns just the canonical entity tags matched in text.
func EntitiesFor(text string) []string {
	lowered := strings.ToLower(text)
	var entities []string
	for _, tag := range sortedKeys(EntitySynonyms) {
		if containsAny(lowered, EntitySynonyms[tag]) {
			entities = append(entities, tag)
		}
	}
	return entities
}

// CompressedIntent maps a user message onto one qualitative routing tag, or
// "" when nothing matches. First match in (failure, automation, structure,
// maintainability) order wins; failure outranks the rest because a user
// reporting breakage usually phrases everything else around it.
func CompressedIntent(message string) string {
	lowered := strings.ToLower(message)
	for _, tag := range []string{"failure", "automation", "structure", "maintainability"} {
		if containsAny(lowered, compressedIntentTerms[tag]) {
			return tag
		}
	}
	return ""
}

// TagWeight returns the discovery weight for a namespaced tag.
func TagWeight(tag string) float64 {
	switch {
	case strings.HasPrefix(tag, "action:"):
		return ActionWeight
	case strings.HasPrefix(tag, "entity:"):
		return EntityWeight
	case strings.HasPrefix(tag, "category:"):
		return CategoryWeight
	}
	return CategoryWeight
}

func containsAny(lowered string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
