// Package main implements the delegation-query Lambda handler: id
// lookups and SCIM filter listings over the delegations table.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"

	"github.com/idstack-io/scim-accounts/internal/delegation"
	"github.com/idstack-io/scim-accounts/internal/plan"
	"github.com/idstack-io/scim-accounts/internal/scim"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// QueryRequest is one delegation lookup or listing. A non-empty
// DelegationID wins over the filter fields.
type QueryRequest struct {
	DelegationID string `json:"delegationId,omitempty"`
	Filter       string `json:"filter,omitempty"`
	SortBy       string `json:"sortBy,omitempty"`
	Ascending    bool   `json:"ascending,omitempty"`
	StartIndex   int    `json:"startIndex,omitempty"`
	Count        int    `json:"count,omitempty"`
}

// QueryResponse carries the matching delegations. Error holds a stable
// code for filters the store cannot serve.
type QueryResponse struct {
	Resources []*delegation.Delegation `json:"resources"`
	Error     string                   `json:"error,omitempty"`
}

// DelegationReader is the slice of the delegation store this handler
// needs.
type DelegationReader interface {
	GetByID(ctx context.Context, id string) (*delegation.Delegation, error)
	GetAll(ctx context.Context, query scim.ResourceQuery) ([]*delegation.Delegation, error)
}

type handler struct {
	delegations DelegationReader
}

func newHandler(delegations DelegationReader) *handler {
	return &handler{delegations: delegations}
}

func (h *handler) handle(ctx context.Context, request QueryRequest) (QueryResponse, error) {
	tracer := otel.Tracer("delegation-query")
	ctx, span := tracer.Start(ctx, "DelegationQueryHandler")
	defer span.End()

	if request.DelegationID != "" {
		d, err := h.delegations.GetByID(ctx, request.DelegationID)
		if err != nil {
			logger.ErrorContext(ctx, "Delegation lookup failed",
				slog.String("delegation_id", request.DelegationID),
				slog.String("error", err.Error()),
			)
			return QueryResponse{}, err
		}
		resources := []*delegation.Delegation{}
		if d != nil {
			resources = append(resources, d)
		}
		return QueryResponse{Resources: resources}, nil
	}

	resources, err := h.delegations.GetAll(ctx, scim.ResourceQuery{
		Filter:     request.Filter,
		SortBy:     request.SortBy,
		Ascending:  request.Ascending,
		StartIndex: request.StartIndex,
		Count:      request.Count,
	})
	if err != nil {
		code := queryErrorCode(err)
		if code != "" {
			logger.InfoContext(ctx, "Query rejected",
				slog.String("filter", request.Filter),
				slog.String("code", code),
			)
			return QueryResponse{Resources: []*delegation.Delegation{}, Error: code}, nil
		}
		logger.ErrorContext(ctx, "Query failed",
			slog.String("filter", request.Filter),
			slog.String("error", err.Error()),
		)
		return QueryResponse{}, err
	}

	if resources == nil {
		resources = []*delegation.Delegation{}
	}
	logger.InfoContext(ctx, "Query completed",
		slog.String("filter", request.Filter),
		slog.Int("result_count", len(resources)),
	)
	return QueryResponse{Resources: resources}, nil
}

// queryErrorCode maps planner rejections to stable response codes.
// Anything else is a server failure.
func queryErrorCode(err error) string {
	switch {
	case errors.Is(err, plan.ErrUnsupportedQuery):
		return "unsupportedFilter"
	case errors.Is(err, plan.ErrTooManyQueries):
		return "tooComplexFilter"
	case errors.Is(err, delegation.ErrQueryRequiresTableScan):
		return "filterRequiresTableScan"
	default:
		return ""
	}
}

func main() {
	ctx := context.Background()

	tp, err := xrayconfig.NewTracerProvider(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize tracer provider", slog.String("error", err.Error()))
		panic(err)
	}
	otel.SetTracerProvider(tp)

	delegationsTable := os.Getenv("DELEGATIONS_TABLE_NAME")
	allowScans := os.Getenv("ALLOW_TABLE_SCANS") == "true"

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(cfg)
	delegations := delegation.NewStore(dynamoClient, delegationsTable, delegation.Options{
		AllowTableScans: allowScans,
	})

	h := newHandler(delegations)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
