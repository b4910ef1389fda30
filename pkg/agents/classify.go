package agents

import (
	"strings"

	"github.com/inkharmony/inkharmony/pkg/domain"
)

// keywordRule maps substrings of a free-form task description to a task type.
// First match wins, so more specific phrases come before generic ones.
type keywordRule struct {
	keywords []string
	taskType domain.TaskType
}

// classifierRules holds per-role inference tables. Inbound messages normally
// carry an explicit task type; this keyword fallback exists only for
// free-text descriptions arriving at the boundary without one.
var classifierRules = map[domain.Role][]keywordRule{
	domain.RoleOutline: {
		{[]string{"character"}, domain.TaskCreateCharacters},
		{[]string{"refine", "revision", "revise"}, domain.TaskRefineOutline},
		{[]string{"outline", "structure", "plot"}, domain.TaskCreateOutline},
	},
	domain.RoleNarrative: {
		{[]string{"revise", "rewrite", "revision"}, domain.TaskReviseChapter},
		{[]string{"write", "draft", "chapter"}, domain.TaskWriteChapter},
	},
	domain.RoleLinguistic: {
		{[]string{"dialogue", "conversation"}, domain.TaskReviewDialogue},
		{[]string{"polish", "grammar", "style", "edit"}, domain.TaskPolishText},
	},
	domain.RoleVisual: {
		{[]string{"cover"}, domain.TaskDesignCover},
		{[]string{"art", "image", "illustration"}, domain.TaskGenerateArt},
	},
}

// defaultTaskTypes is the role's fallback when a description matches nothing.
var defaultTaskTypes = map[domain.Role]domain.TaskType{
	domain.RoleOutline:    domain.TaskRefineOutline,
	domain.RoleNarrative:  domain.TaskWriteChapter,
	domain.RoleLinguistic: domain.TaskPolishText,
	domain.RoleVisual:     domain.TaskDesignCover,
}

// isWorkerRole reports whether a role is one of the task-executing agents.
func isWorkerRole(r domain.Role) bool {
	for _, w := range domain.WorkerRoles() {
		if w == r {
			return true
		}
	}
	return false
}

// InferTaskType classifies a free-form task description for a worker role.
// Returns false when the description matches no rule and the role has no
// default.
func InferTaskType(role domain.Role, description string) (domain.TaskType, bool) {
	desc := strings.ToLower(description)
	if desc != "" {
		for _, rule := range classifierRules[role] {
			for _, kw := range rule.keywords {
				if strings.Contains(desc, kw) {
					return rule.taskType, true
				}
			}
		}
	}
	tt, ok := defaultTaskTypes[role]
	return tt, ok
}

// ResolveTaskType returns the message's explicit task type when present and
// valid, otherwise falls back to keyword inference over the task description.
func ResolveTaskType(role domain.Role, explicit domain.TaskType, description string) (domain.TaskType, bool) {
	if explicit != "" && explicit.Valid() {
		return explicit, true
	}
	return InferTaskType(role, description)
}
