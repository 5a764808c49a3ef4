package interview

import "regexp"

// Sentiment keyword tiers. Each hit contributes its signed weight; the sum
// is clamped to [-1,1].
var sentimentTiers = []struct {
	weight   float64
	keywords []string
}{
	{-0.30, []string{
		"quit", "resign", "leaving", "fed up", "miserable", "toxic",
		"can't take", "burned out", "burnt out", "done with this",
	}},
	{-0.15, []string{
		"frustrated", "unhappy", "overworked", "undervalued", "stressed",
		"exhausted", "ignored", "underpaid", "stuck",
	}},
	{-0.05, []string{
		"concerned", "worried", "unsure", "tired", "bored", "disappointed",
	}},
	{0.25, []string{
		"love working", "thrilled", "excited", "energized", "proud of",
		"best team", "grateful",
	}},
	{0.12, []string{
		"happy", "satisfied", "enjoying", "supported", "appreciated",
		"good balance", "growing",
	}},
}

// Risk signal patterns. A hit adds its adjustment and records its label.
var riskPatterns = []struct {
	re         *regexp.Regexp
	adjustment float64
	label      string
}{
	{regexp.MustCompile(`(?i)actively\s+(job\s+)?(searching|looking|interviewing)`), 0.25, "actively job searching"},
	{regexp.MustCompile(`(?i)(recruiter|offer)\s+(reached\s+out|contacted|on\s+the\s+table)`), 0.20, "external offer or recruiter contact"},
	{regexp.MustCompile(`(?i)updated?\s+(my\s+)?(resume|cv|linkedin)`), 0.15, "updated resume or profile"},
	{regexp.MustCompile(`(?i)(thinking|considering)\s+(about\s+)?(leaving|quitting|moving\s+on)`), 0.20, "considering departure"},
	{regexp.MustCompile(`(?i)no\s+(room|path|opportunity)\s+(for\s+|to\s+)?(growth|grow|advance)`), 0.12, "no growth path"},
	{regexp.MustCompile(`(?i)(conflict|problem|issues?)\s+with\s+(my\s+)?manager`), 0.12, "manager conflict"},
	{regexp.MustCompile(`(?i)(pay|salary|compensation)\s+(is\s+)?(below|under|not\s+competitive|too\s+low)`), 0.10, "compensation dissatisfaction"},
	{regexp.MustCompile(`(?i)work.?life\s+balance\s+(is\s+)?(bad|poor|terrible|nonexistent)`), 0.10, "work-life balance breakdown"},
}

// Positive signal patterns offset the risk adjustment.
var positivePatterns = []struct {
	re         *regexp.Regexp
	adjustment float64
	label      string
}{
	{regexp.MustCompile(`(?i)(committed|staying|here\s+for\s+the\s+long)`), -0.15, "stated commitment"},
	{regexp.MustCompile(`(?i)(promoted|promotion|new\s+responsibilit)`), -0.10, "recent growth"},
	{regexp.MustCompile(`(?i)(great|supportive|best)\s+(manager|team)`), -0.10, "strong manager or team bond"},
	{regexp.MustCompile(`(?i)turned\s+down\s+(an?\s+)?offer`), -0.12, "declined external offer"},
}

// Topic keyword groups for theme extraction.
var themeTopics = []struct {
	theme    string
	keywords []string
}{
	{"career growth", []string{"growth", "promotion", "career", "advance", "develop"}},
	{"compensation", []string{"pay", "salary", "compensation", "bonus", "equity", "raise"}},
	{"management", []string{"manager", "leadership", "boss", "direction"}},
	{"team", []string{"team", "colleague", "coworker", "collaboration"}},
	{"work-life balance", []string{"balance", "hours", "overtime", "flexibility", "remote"}},
	{"culture", []string{"culture", "values", "environment", "politics"}},
	{"learning", []string{"learning", "training", "mentorship", "skills"}},
	{"recognition", []string{"recognition", "appreciated", "credit", "visibility"}},
	{"workload", []string{"workload", "overworked", "capacity", "understaffed"}},
	{"benefits", []string{"benefits", "insurance", "pto", "vacation", "perks"}},
}
