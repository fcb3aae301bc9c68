package chat

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	mqcontracts "taskagent/contracts/mq"
	"taskagent/internal/agent"
	"taskagent/internal/taskops"
	"taskagent/pkg/circuitbreaker"
	"taskagent/pkg/logger"
	"taskagent/pkg/metrics"
	"taskagent/pkg/otel"
	"taskagent/pkg/trace"
)

const DefaultConfirmationTTL = 5 * time.Minute

// Executor runs a selected operation for a user. Resolve looks up the task
// a reference points at without changing it.
type Executor interface {
	Execute(ctx context.Context, userID int, op agent.Operation, p agent.Params) taskops.Result
	Resolve(ctx context.Context, userID int, op agent.Operation, p agent.Params) taskops.Result
}

// Publisher sends events to the message broker.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Service runs one chat turn: classify, select, confirm if needed, execute
// and render the reply.
type Service struct {
	classifier *agent.Classifier
	selector   *agent.Selector
	executor   Executor
	pending    PendingStore
	publisher  Publisher
	breaker    *circuitbreaker.CircuitBreaker
	ttl        time.Duration
	logger     *zap.Logger
}

type Option func(*Service)

// WithConfirmationTTL sets how long a pending action waits for confirmation.
func WithConfirmationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPublisher enables publishing unclassified messages. Publishing goes
// through a circuit breaker so a broker outage does not slow chat turns.
func WithPublisher(p Publisher, cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *Service) {
		s.publisher = p
		if cb == nil {
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
		}
		s.breaker = cb
	}
}

func NewService(
	classifier *agent.Classifier,
	selector *agent.Selector,
	executor Executor,
	pending PendingStore,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		classifier: classifier,
		selector:   selector,
		executor:   executor,
		pending:    pending,
		ttl:        DefaultConfirmationTTL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleMessage answers one user message.
func (s *Service) HandleMessage(ctx context.Context, userID int, message string) Reply {
	ctx, traceID := trace.Ensure(ctx)
	ctx, span := otel.StartSpan(ctx, "chat.handle_message")
	defer span.End()
	log := logger.WithTrace(ctx, s.logger).With(zap.Int("user_id", userID))

	result := s.classifier.Classify(message)
	metrics.RecordClassification(string(result.Intent), result.Confidence)
	span.SetAttributes(
		attribute.String("chat.intent", string(result.Intent)),
		attribute.Float64("chat.confidence", result.Confidence),
	)

	params := result.Params
	reply := Reply{
		Intent:     result.Intent,
		Confidence: result.Confidence,
		Parameters: &params,
	}

	if result.Intent == agent.IntentUnknown {
		s.publishUnclassified(ctx, userID, message, result.Confidence, traceID)
	}

	if result.Intent == agent.IntentGreeting || result.Intent == agent.IntentClarify {
		metrics.IncrementSelectionOutcome("no_action")
		reply.Kind = KindGreeting
		if result.Intent == agent.IntentClarify {
			reply.Kind = KindClarify
		}
		reply.Message = agent.ConfirmationText(result.Intent, result.Params)
		return reply
	}

	sel := s.selector.SelectResult(result)
	if sel.ErrorMessage != "" {
		reply.Message = sel.ErrorMessage
		switch {
		case result.Confidence < agent.ConfidenceThreshold:
			reply.Kind = KindLowConfidence
		case result.Intent == agent.IntentUnknown:
			reply.Kind = KindUnknown
		default:
			reply.Kind = KindClarify
		}
		metrics.IncrementSelectionOutcome(string(reply.Kind))
		log.Info("No operation selected",
			zap.String("intent", string(result.Intent)),
			zap.String("kind", string(reply.Kind)),
		)
		return reply
	}
	if sel.NoAction() {
		metrics.IncrementSelectionOutcome("no_action")
		reply.Kind = KindClarify
		reply.Message = agent.RephraseText
		return reply
	}

	metrics.IncrementSelectionOutcome("selected")
	reply.Operation = sel.Operation

	if agent.RequiresConfirmation(result.Intent) {
		// 先解析目标任务，确认时执行的就是这里展示的任务
		res := s.executor.Resolve(ctx, userID, sel.Operation, result.Params)
		if !res.OK() {
			return s.fail(log, sel.Operation, res.Error, reply)
		}
		target, _ := res.Data.(taskops.TaskView)
		stored := result.Params
		stored.TaskID = target.ID

		id, err := s.pending.Save(ctx, userID, PendingAction{
			Intent:    result.Intent,
			Operation: sel.Operation,
			Params:    stored,
			CreatedAt: time.Now().UTC(),
		}, s.ttl)
		if err != nil {
			log.Error("Failed to store pending action", zap.Error(err))
			span.SetStatus(codes.Error, err.Error())
			reply.Kind = KindError
			reply.Message = failureText(result.Intent, &taskops.ToolError{
				Code:    taskops.CodeInternal,
				Message: "Failed to " + agent.Verb(sel.Operation) + " task",
			})
			return reply
		}
		metrics.IncrementConfirmation("requested")
		log.Info("Awaiting confirmation",
			zap.String("operation", string(sel.Operation)),
			zap.String("task_id", target.ID),
			zap.String("confirmation_id", id),
		)
		named := result.Params
		named.TaskIdentifier = target.Title
		reply.Kind = KindConfirm
		reply.ConfirmationID = id
		reply.Data = target
		reply.Message = agent.ConfirmationText(result.Intent, named)
		return reply
	}

	return s.execute(ctx, log, userID, sel.Operation, result.Params, reply)
}

// Confirm runs (approve) or discards a pending action. An id that is
// unknown, expired, already used or owned by another user has nothing to
// confirm.
func (s *Service) Confirm(ctx context.Context, userID int, confirmationID string, approve bool) Reply {
	ctx, _ = trace.Ensure(ctx)
	ctx, span := otel.StartSpan(ctx, "chat.confirm")
	defer span.End()
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int("user_id", userID),
		zap.String("confirmation_id", confirmationID),
	)

	action, err := s.pending.Take(ctx, userID, confirmationID)
	if err != nil {
		log.Error("Failed to load pending action", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return Reply{Kind: KindError, Message: "Something went wrong. Please try again."}
	}
	if action == nil {
		metrics.IncrementConfirmation("expired")
		return Reply{Kind: KindExpired, Message: NothingToConfirmText}
	}

	params := action.Params
	reply := Reply{
		Intent:     action.Intent,
		Parameters: &params,
		Operation:  action.Operation,
	}
	if !approve {
		metrics.IncrementConfirmation("rejected")
		log.Info("Pending action discarded", zap.String("operation", string(action.Operation)))
		reply.Kind = KindCancelled
		reply.Message = CancelledText
		return reply
	}

	metrics.IncrementConfirmation("approved")
	return s.execute(ctx, log, userID, action.Operation, action.Params, reply)
}

func (s *Service) execute(ctx context.Context, log *zap.Logger, userID int, op agent.Operation, p agent.Params, reply Reply) Reply {
	res := s.executor.Execute(ctx, userID, op, p)
	if res.OK() {
		reply.Kind = KindResult
		reply.Data = res.Data
		reply.Message = successText(op, p, res.Data)
		return reply
	}

	return s.fail(log, op, res.Error, reply)
}

func (s *Service) fail(log *zap.Logger, op agent.Operation, e *taskops.ToolError, reply Reply) Reply {
	reply.Kind = KindError
	reply.Message = failureText(reply.Intent, e)
	if e != nil {
		log.Warn("Operation failed",
			zap.String("operation", string(op)),
			zap.String("code", string(e.Code)),
		)
		// 内部错误细节只写日志
		reply.Error = &taskops.ToolError{Code: e.Code, Message: e.Message}
		if e.Code != taskops.CodeInternal {
			reply.Error.Details = e.Details
		}
	}
	return reply
}

// publishUnclassified 尽力而为，失败只记录日志
func (s *Service) publishUnclassified(ctx context.Context, userID int, message string, confidence float64, traceID string) {
	if s.publisher == nil {
		return
	}
	payload := mqcontracts.MessageUnclassifiedPayload{
		UserID:     userID,
		Message:    message,
		Confidence: confidence,
		ReceivedAt: time.Now().UTC(),
		TraceID:    traceID,
	}
	err := s.breaker.Execute(func() error {
		return s.publisher.PublishWithContext(ctx, mqcontracts.RoutingMessageUnclassified, payload)
	})
	if err != nil {
		s.logger.Warn("Failed to publish unclassified message",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
	}
}
