package cache

import (
	"regexp"
)

// Cache key namespaces. List and single-document keys share the user
// segment so one regex can invalidate everything a user owns without
// enumerating document ids.
const (
	nsResume     = "resume"
	nsResumeList = "resume-list"
	nsAIResult   = "ai"
	nsTemplate   = "template"
)

// ResumeKey returns the cache key for a single document.
func ResumeKey(userID, resumeID string) string {
	return nsResume + ":" + userID + ":" + resumeID
}

// ResumeListKey returns the cache key for a user's document list.
func ResumeListKey(userID string) string {
	return nsResumeList + ":" + userID
}

// AIResultKey returns the cache key for a computed AI result, where
// promptHash identifies the prompt that produced it.
func AIResultKey(userID, promptHash string) string {
	return nsAIResult + ":" + userID + ":" + promptHash
}

// TemplateKey returns the cache key for a layout template.
func TemplateKey(name string) string {
	return nsTemplate + ":" + name
}

// UserPattern matches every user-scoped key for userID across the
// resume, resume-list and ai namespaces. Template keys are global and
// never match.
func UserPattern(userID string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(userID)
	return regexp.MustCompile(`^(` + nsResume + `|` + nsResumeList + `|` + nsAIResult + `):` + quoted + `(:|$)`)
}
