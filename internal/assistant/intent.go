package assistant

import (
	"strings"

	"github.com/mtzanidakis/agency/internal/model"
)

// IntentType classifies what the user wants from a message.
type IntentType string

const (
	IntentTask     IntentType = "task"
	IntentQuery    IntentType = "query"
	IntentFeedback IntentType = "feedback"
	IntentGreeting IntentType = "greeting"
	IntentUnknown  IntentType = "unknown"
)

// Keyword tables for intent classification. Users write in Chinese or
// English; Chinese keywords match as substrings, short English ones as
// whole words to avoid accidental hits inside longer words.
var (
	taskKeywords     = []string{"帮我", "开发", "写", "做", "创建", "实现", "help me", "develop", "implement", "create", "build"}
	queryKeywords    = []string{"进度", "状态", "怎么样", "完成", "progress", "status", "how is"}
	feedbackKeywords = []string{"不对", "修改", "重做", "做得好", "很好", "满意", "wrong", "redo", "satisfied", "thanks"}
	greetingKeywords = []string{"你好", "早上", "晚上", "hi", "hello", "morning", "evening"}
)

// parseIntent checks intent classes in fixed order: task beats query
// beats feedback beats greeting. "写一篇博客" is a task, not feedback.
func parseIntent(text string) IntentType {
	lower := strings.ToLower(text)

	if matchAny(lower, taskKeywords) {
		return IntentTask
	}
	if matchAny(lower, queryKeywords) {
		return IntentQuery
	}
	if matchAny(lower, feedbackKeywords) {
		return IntentFeedback
	}
	if matchAny(lower, greetingKeywords) {
		return IntentGreeting
	}
	return IntentUnknown
}

func matchAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if isASCIIWord(kw) {
			if containsWord(lower, kw) {
				return true
			}
		} else if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isAlnum(text[start-1])
		afterOK := end == len(text) || !isAlnum(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func inferTaskType(text string) model.TaskType {
	lower := strings.ToLower(text)

	switch {
	case matchAny(lower, []string{"开发", "代码", "api", "coding", "develop"}):
		return model.TaskCoding
	case matchAny(lower, []string{"写", "文章", "书", "writing", "blog", "article"}):
		return model.TaskWriting
	case matchAny(lower, []string{"调研", "分析", "research", "analyze"}):
		return model.TaskResearch
	}
	// Default: treat ambiguous work requests as coding.
	return model.TaskCoding
}

func inferPriority(text string) model.TaskPriority {
	lower := strings.ToLower(text)

	switch {
	case matchAny(lower, []string{"紧急", "立即", "尽快", "urgent", "immediately", "asap"}):
		return model.TaskPriorityCritical
	case matchAny(lower, []string{"重要", "优先", "important", "priority"}):
		return model.TaskPriorityHigh
	}
	return model.TaskPriorityNormal
}
