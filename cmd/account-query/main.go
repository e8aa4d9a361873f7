// Package main implements the account-query Lambda handler: SCIM
// filter listings over the accounts table.
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

	"github.com/idstack-io/scim-accounts/internal/account"
	"github.com/idstack-io/scim-accounts/internal/plan"
	"github.com/idstack-io/scim-accounts/internal/scim"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// QueryRequest is one SCIM listing request.
type QueryRequest struct {
	Filter     string   `json:"filter,omitempty"`
	SortBy     string   `json:"sortBy,omitempty"`
	Ascending  bool     `json:"ascending,omitempty"`
	StartIndex int      `json:"startIndex,omitempty"`
	Count      int      `json:"count,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
}

// QueryResponse carries the matching resources. Error holds a stable
// code for filters the store cannot serve.
type QueryResponse struct {
	Resources []scim.Attributes `json:"resources"`
	Error     string            `json:"error,omitempty"`
}

// AccountLister is the slice of the account store this handler needs.
type AccountLister interface {
	GetAll(ctx context.Context, query scim.ResourceQuery) ([]scim.Attributes, error)
}

type handler struct {
	accounts AccountLister
}

func newHandler(accounts AccountLister) *handler {
	return &handler{accounts: accounts}
}

func (h *handler) handle(ctx context.Context, request QueryRequest) (QueryResponse, error) {
	tracer := otel.Tracer("account-query")
	ctx, span := tracer.Start(ctx, "AccountQueryHandler")
	defer span.End()

	resources, err := h.accounts.GetAll(ctx, scim.ResourceQuery{
		Filter:     request.Filter,
		SortBy:     request.SortBy,
		Ascending:  request.Ascending,
		StartIndex: request.StartIndex,
		Count:      request.Count,
		Attributes: request.Attributes,
	})
	if err != nil {
		code := queryErrorCode(err)
		if code != "" {
			logger.InfoContext(ctx, "Query rejected",
				slog.String("filter", request.Filter),
				slog.String("code", code),
			)
			return QueryResponse{Resources: []scim.Attributes{}, Error: code}, nil
		}
		logger.ErrorContext(ctx, "Query failed",
			slog.String("filter", request.Filter),
			slog.String("error", err.Error()),
		)
		return QueryResponse{}, err
	}

	if resources == nil {
		resources = []scim.Attributes{}
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
	case errors.Is(err, account.ErrQueryRequiresTableScan):
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

	accountsTable := os.Getenv("ACCOUNTS_TABLE_NAME")
	allowScans := os.Getenv("ALLOW_TABLE_SCANS") == "true"

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(cfg)
	accounts := account.NewStore(dynamoClient, accountsTable, account.Options{
		AllowTableScans: allowScans,
	})

	h := newHandler(accounts)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
