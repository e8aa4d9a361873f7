// Package main implements the account-set Lambda handler: create,
// update, patch, delete, and password changes for accounts.
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
	"github.com/idstack-io/scim-accounts/internal/scim"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// Actions accepted by SetRequest.
const (
	ActionCreate      = "create"
	ActionUpdate      = "update"
	ActionPatch       = "patch"
	ActionDelete      = "delete"
	ActionSetPassword = "setPassword"
)

// SetRequest is one account mutation.
type SetRequest struct {
	Action     string          `json:"action"`
	AccountID  string          `json:"accountId,omitempty"`
	Attributes scim.Attributes `json:"attributes,omitempty"`

	// Patch fields.
	Additions    scim.Attributes `json:"additions,omitempty"`
	Replacements scim.Attributes `json:"replacements,omitempty"`
	Removals     []string        `json:"removals,omitempty"`

	// setPassword fields.
	UserName string `json:"userName,omitempty"`
	Password string `json:"password,omitempty"`
}

// SetResponse reports the mutation outcome. Error carries a stable
// code ("conflict", "invalidRequest") for failures the caller can act
// on; transport errors surface as Lambda errors instead.
type SetResponse struct {
	Found   bool            `json:"found"`
	Account scim.Attributes `json:"account,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// AccountWriter is the slice of the account store this handler needs.
type AccountWriter interface {
	Create(ctx context.Context, attrs scim.Attributes) (*account.Record, error)
	Update(ctx context.Context, accountID string, attrs scim.Attributes) (*account.Record, error)
	Patch(ctx context.Context, accountID string, update scim.AttributeUpdate) (*account.Record, error)
	Delete(ctx context.Context, accountID string) error
	UpdatePassword(ctx context.Context, userName, newPassword string) error
}

type handler struct {
	accounts AccountWriter
}

func newHandler(accounts AccountWriter) *handler {
	return &handler{accounts: accounts}
}

func (h *handler) handle(ctx context.Context, request SetRequest) (SetResponse, error) {
	tracer := otel.Tracer("account-set")
	ctx, span := tracer.Start(ctx, "AccountSetHandler")
	defer span.End()

	response, err := h.dispatch(ctx, request)
	if err != nil {
		if errors.Is(err, account.ErrConflict) {
			logger.InfoContext(ctx, "Account mutation conflicted",
				slog.String("action", request.Action),
				slog.String("account_id", request.AccountID),
			)
			return SetResponse{Error: "conflict"}, nil
		}
		logger.ErrorContext(ctx, "Account mutation failed",
			slog.String("action", request.Action),
			slog.String("account_id", request.AccountID),
			slog.String("error", err.Error()),
		)
		return SetResponse{}, err
	}

	logger.InfoContext(ctx, "Account mutation completed",
		slog.String("action", request.Action),
	)
	return response, nil
}

func (h *handler) dispatch(ctx context.Context, request SetRequest) (SetResponse, error) {
	switch request.Action {
	case ActionCreate:
		record, err := h.accounts.Create(ctx, request.Attributes)
		if err != nil {
			return SetResponse{}, err
		}
		return SetResponse{Found: true, Account: record.ToSCIM()}, nil

	case ActionUpdate:
		record, err := h.accounts.Update(ctx, request.AccountID, request.Attributes)
		if err != nil {
			return SetResponse{}, err
		}
		if record == nil {
			return SetResponse{Found: false}, nil
		}
		return SetResponse{Found: true, Account: record.ToSCIM()}, nil

	case ActionPatch:
		record, err := h.accounts.Patch(ctx, request.AccountID, scim.AttributeUpdate{
			Additions:    request.Additions,
			Replacements: request.Replacements,
			Removals:     request.Removals,
		})
		if err != nil {
			return SetResponse{}, err
		}
		if record == nil {
			return SetResponse{Found: false}, nil
		}
		return SetResponse{Found: true, Account: record.ToSCIM()}, nil

	case ActionDelete:
		if err := h.accounts.Delete(ctx, request.AccountID); err != nil {
			return SetResponse{}, err
		}
		return SetResponse{Found: true}, nil

	case ActionSetPassword:
		if err := h.accounts.UpdatePassword(ctx, request.UserName, request.Password); err != nil {
			return SetResponse{}, err
		}
		return SetResponse{Found: true}, nil

	default:
		return SetResponse{Error: "invalidRequest"}, nil
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

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(cfg)
	accounts := account.NewStore(dynamoClient, accountsTable, account.Options{})

	h := newHandler(accounts)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
