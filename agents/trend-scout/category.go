package trendscout

import (
	"strings"

	"trend-stack/internal/models"
)

type categoryRule struct {
	category models.Category
	terms    []string
}

// Evaluated in order; the first rule with a matching term wins.
var categoryRules = []categoryRule{
	{models.CategoryTechnology, []string{
		"tech", "software", "programming", "coding", "developer", "computer",
		"smartphone", "iphone", "android", "gadget", "laptop", "artificial intelligence",
		"machine learning", "robot", "drone", "electronics",
	}},
	{models.CategoryGaming, []string{
		"gaming", "gameplay", "game", "playthrough", "walkthrough", "speedrun",
		"minecraft", "fortnite", "esports", "nintendo", "playstation", "xbox",
	}},
	{models.CategoryEntertainment, []string{
		"movie", "film", "trailer", "music", "song", "comedy", "prank",
		"celebrity", "reaction", "series", "episode", "concert", "vlog",
	}},
	{models.CategoryEducation, []string{
		"tutorial", "learn", "lesson", "course", "explained", "how to",
		"science", "history", "math", "physics", "lecture", "study",
	}},
}

// Categorize matches text against the rule table by substring containment.
// It returns CategoryNone when no rule matches.
func Categorize(text string) models.Category {
	text = strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, term := range rule.terms {
			if strings.Contains(text, term) {
				return rule.category
			}
		}
	}
	return models.CategoryNone
}
