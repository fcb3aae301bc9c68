package agent

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	greetingConfidence = 0.95
	paramsConfidence   = 0.8
	bareConfidence     = 0.7
	unknownConfidence  = 0.3

	// unknown 消息日志截断长度（按字符计）
	logPreviewLen = 50
)

// Classifier maps free-form messages to an intent, a confidence and a
// parameter set using ordered regular-expression rules.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	logger *zap.Logger
}

// NewClassifier creates a Classifier. A nil logger disables logging.
func NewClassifier(logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{logger: logger}
}

// Classify returns the intent of message with its confidence and extracted
// parameters. It never fails; unmatched input yields IntentUnknown.
func (c *Classifier) Classify(message string) Result {
	normalized := strings.ToLower(strings.TrimSpace(message))

	for _, rule := range intentRules {
		if !matchesAny(rule.patterns, normalized) {
			continue
		}

		if rule.intent == IntentGreeting {
			return Result{Intent: IntentGreeting, Confidence: greetingConfidence}
		}

		params := ExtractParams(rule.intent, message)
		confidence := bareConfidence
		if !params.IsEmpty() {
			confidence = paramsConfidence
		}

		c.logger.Debug("Message classified",
			zap.String("intent", string(rule.intent)),
			zap.Float64("confidence", confidence),
		)

		return Result{Intent: rule.intent, Confidence: confidence, Params: params}
	}

	c.logger.Warn("Could not classify message",
		zap.String("message", truncate(message, logPreviewLen)),
	)

	return Result{Intent: IntentUnknown, Confidence: unknownConfidence}
}

// ExtractParams pulls intent-specific parameters out of the original
// (non-lowercased) message.
func ExtractParams(intent Intent, message string) Params {
	// Go 的 $ 只匹配文本末尾，去掉结尾换行以保持行尾语义
	raw := strings.TrimSuffix(message, "\n")

	var p Params

	switch intent {
	case IntentCreateTask:
		if m := createTitleRe.FindStringSubmatch(raw); m != nil {
			p.Title = strings.TrimSpace(m[1])
		} else {
			p.Title = strings.TrimSpace(message)
		}

	case IntentListTasks:
		switch {
		case pendingRe.MatchString(raw):
			p.Status = StatusPending
		case completedRe.MatchString(raw):
			p.Status = StatusCompleted
		default:
			p.Status = StatusAll
		}

	case IntentCompleteTask, IntentUpdateTask, IntentDeleteTask:
		p = extractTaskReference(raw)

		if intent == IntentUpdateTask {
			if m := newTitleRe.FindStringSubmatch(raw); m != nil {
				title := strings.TrimSpace(m[1])
				title = leadingTaskWord.ReplaceAllString(title, "")
				title = stripQuotes(title)
				if title != "" {
					p.NewTitle = title
				}
			}
		}
	}

	return p
}

func extractTaskReference(raw string) Params {
	var p Params

	if m := taskNumberRe.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			p.TaskIndex = IntPtr(n)
		}
	}

	if m := quotedRe.FindStringSubmatch(raw); m != nil {
		p.TaskIdentifier = m[1]
		return p
	}

	if m := afterKeywordRe.FindStringSubmatch(raw); m != nil {
		ident := strings.TrimSpace(m[1])
		// "task #3" 这种纯数字引用已经由 TaskIndex 表达，不重复记录
		if isDigits(strings.TrimLeft(ident, "#")) && p.TaskIndex != nil {
			return p
		}
		p.TaskIdentifier = ident
	}

	return p
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// stripQuotes removes one pair of matching surrounding quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
