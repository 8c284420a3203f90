package application

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

const msgEmptyQuery = "¿En qué puedo ayudarte? Puedes preguntarme por tus clientes, eventos, cotizaciones o productos, o pedirme que cree o actualice uno."

// LearnedContextSource returns the learned-context prompt fragment for a
// query along with the query embedding, which is nil when embedding failed.
type LearnedContextSource interface {
	Retrieve(ctx context.Context, query, tenantID string) (string, domain.Embedding)
}

// QueryServiceDeps groups the collaborators of a QueryService. Sink and
// Learning may be nil.
type QueryServiceDeps struct {
	Introspector *SchemaIntrospector
	Learning     LearnedContextSource
	Sink         domain.LearningSink
	Classifier   *IntentClassifier
	Dispatcher   *Dispatcher
	Gate         *MutationGate
	Executor     domain.FunctionRepository
	Responder    *ResponseGenerator
}

// QueryService is the natural-language entry point: it routes write
// commands to the mutation executor and everything else through
// classification, dispatch and rendering.
type QueryService struct {
	deps   QueryServiceDeps
	now    func() time.Time
	logger *zap.Logger
}

var _ domain.QueryProcessor = (*QueryService)(nil)

// NewQueryService creates a QueryService.
func NewQueryService(deps QueryServiceDeps, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Introspector == nil {
		deps.Introspector = NewSchemaIntrospector()
	}
	return &QueryService{deps: deps, now: time.Now, logger: logger}
}

// ProcessQuery answers query for the tenant in rc. The only error is
// domain.ErrMissingTenant; every other failure is turned into a polite
// response.
func (s *QueryService) ProcessQuery(ctx context.Context, query string, rc domain.RequestContext) (*domain.QueryResult, error) {
	if rc.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return s.result(query, domain.DefaultIntent(query), nil, msgEmptyQuery), nil
	}

	log := s.logger.With(zap.String("tenant", rc.TenantID), zap.String("query", query))

	if req, ok := s.deps.Gate.Detect(query); ok {
		log.Debug("write command detected", zap.String("function", req.Function))
		return s.processMutation(ctx, query, req, rc), nil
	}

	learned, vector := noLearnedExamples, domain.Embedding(nil)
	if s.deps.Learning != nil {
		learned, vector = s.deps.Learning.Retrieve(ctx, query, rc.TenantID)
	}
	ctx = withQueryEmbedding(ctx, query, vector)

	intent := s.deps.Classifier.Classify(ctx, query, ClassifyInput{
		SchemaText:     s.deps.Introspector.DescribeSchema(),
		ExamplesText:   s.deps.Introspector.DescribeQueryExamples(),
		LearnedContext: learned,
	})

	if intent.Type == domain.IntentMutation {
		if def, ok := s.deps.Executor.FindFunctionByName(intent.Action); ok {
			req := MutationRequest{Operation: def.Operation, Entity: def.Entity, Function: def.Name}
			return s.processMutation(ctx, query, req, rc), nil
		}
	}

	res, err := s.deps.Dispatcher.Dispatch(ctx, intent, rc)
	if err != nil {
		log.Error("query handler failed",
			zap.String("type", string(intent.Type)),
			zap.String("entity", string(intent.Entity)),
			zap.Error(err))
		return s.result(query, intent, nil, s.deps.Responder.RenderError(err)), nil
	}

	response := s.deps.Responder.Render(ctx, query, intent, res)

	var results any
	switch {
	case res.Count != nil:
		results = *res.Count
	case len(res.Records) > 0:
		results = res.Records
	}

	log.Info("query processed",
		zap.String("type", string(intent.Type)),
		zap.String("entity", string(intent.Entity)),
		zap.Bool("supported", res.Supported),
		zap.String("searchMode", res.SearchMode))

	if res.Supported && !res.Empty() {
		s.learn(ctx, domain.QueryExample{
			UserQuery: query,
			Intent:    intent.Type,
			Action:    actionName(intent),
			Entity:    intent.Entity,
			Filters:   intent.Params.Filters,
			Response:  response,
			Embedding: vector,
			TenantID:  rc.TenantID,
		})
	}
	return s.result(query, intent, results, response), nil
}

func (s *QueryService) processMutation(ctx context.Context, query string, req MutationRequest, rc domain.RequestContext) *domain.QueryResult {
	intent := domain.IntentDescriptor{
		Type:       domain.IntentMutation,
		Entity:     req.Entity,
		Action:     req.Function,
		Params:     domain.IntentParams{Query: query},
		Confidence: 1,
	}

	var args map[string]any
	if def, ok := s.deps.Executor.FindFunctionByName(req.Function); ok {
		args = s.deps.Gate.Extract(ctx, query, def)
	}

	result, err := s.deps.Executor.Execute(ctx, req.Function, args, rc)
	response := s.deps.Responder.RenderMutation(result, err)
	if err != nil {
		s.logger.Info("write command rejected",
			zap.String("tenant", rc.TenantID),
			zap.String("function", req.Function),
			zap.Error(err))
		return s.result(query, intent, nil, response)
	}

	s.learn(ctx, domain.QueryExample{
		UserQuery: query,
		Intent:    domain.IntentMutation,
		Action:    req.Function,
		Entity:    req.Entity,
		Response:  response,
		TenantID:  rc.TenantID,
	})
	return s.result(query, intent, result, response)
}

func (s *QueryService) learn(ctx context.Context, ex domain.QueryExample) {
	if s.deps.Sink != nil {
		s.deps.Sink.Record(ctx, ex)
	}
}

func (s *QueryService) result(query string, intent domain.IntentDescriptor, results any, response string) *domain.QueryResult {
	return &domain.QueryResult{
		Query:     query,
		Intent:    intent,
		Results:   results,
		Response:  response,
		Timestamp: s.now(),
	}
}

func actionName(intent domain.IntentDescriptor) string {
	if intent.Action != "" {
		return intent.Action
	}
	return string(intent.Type)
}
