package agent

import "regexp"

// intentRule binds an intent to the patterns that recognize it.
type intentRule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

// intentRules is evaluated in order and the first rule with a matching
// pattern wins, so greetings short-circuit every task intent.
// All patterns run against lowercased, trimmed text.
var intentRules = []intentRule{
	{
		intent: IntentGreeting,
		patterns: compileAll(
			`^(hi|hello|hey|greetings)\b`,
			`\bhow\s+are\s+you`,
		),
	},
	{
		intent: IntentCreateTask,
		patterns: compileAll(
			`\b(create|add|new|make)\s+(a\s+)?(task|todo|item)`,
			`\bremind me to\b`,
			`\bi need to\b`,
			`^(create|add|new)\b`,
		),
	},
	{
		intent: IntentListTasks,
		patterns: compileAll(
			`\b(show|list|display|get|view)\s+(my\s+)?(tasks?|todos?|items?)`,
			`\b(show|display)\s+(my\s+)?(pending|completed|all)`,
			`\bwhat('?s|\s+is)\s+(on\s+)?my\s+(list|todo|tasks?)`,
			`\bshow\s+me\s+(everything|all)`,
			`^(list|show)\b`,
		),
	},
	{
		intent: IntentCompleteTask,
		patterns: compileAll(
			`\b(complete|finish|done|mark)\s+(task|todo|item)?`,
			`\bmark\s+.+\s+as\s+(complete|done)`,
			`\bi('ve|\s+have)\s+(finished|completed|done)`,
		),
	},
	{
		intent: IntentUpdateTask,
		patterns: compileAll(
			`\b(update|edit|change|modify)\s+(task|todo|item|my)`,
			`\b(edit|update)\s+(my\s+)?(first|second|third|\d+)`,
			`\brename\s+(task|todo|item)`,
			`\bchange\s+.+\s+to\b`,
			`\b(update|edit|change)\s+.+\s+(?:to|with)\b`,
		),
	},
	{
		intent: IntentDeleteTask,
		patterns: compileAll(
			`\b(delete|remove|cancel)\s+(task|todo|item|my|the)`,
			`\b(remove|delete)\s+(my\s+)?(first|second|third|\d+)`,
			`\bget\s+rid\s+of\b`,
			`\bdelete\b`,
		),
	},
}

// 参数提取用的正则，作用于原始消息（不做小写处理）
var (
	createTitleRe   = regexp.MustCompile(`(?i)(?:create|add|new|make|remind me to)\s+(?:a\s+)?(?:task\s+)?(?:to\s+)?(.+)`)
	pendingRe       = regexp.MustCompile(`(?i)\b(pending|incomplete|open)\b`)
	completedRe     = regexp.MustCompile(`(?i)\b(completed|done|finished)\b`)
	taskNumberRe    = regexp.MustCompile(`#?(\d+)`)
	quotedRe        = regexp.MustCompile(`["'](.+?)["']`)
	afterKeywordRe  = regexp.MustCompile(`(?i)(?:task|todo|item)\s+(.+?)(?:\s+(?:as|to|with)\b|$)`)
	newTitleRe      = regexp.MustCompile(`(?i)\b(?:to|with)\s+(.+)$`)
	leadingTaskWord = regexp.MustCompile(`(?i)^task\s+`)
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+expr))
	}
	return out
}
