// Package main implements the account-get Lambda handler: point reads
// of one account by any of its unique attributes, with linked foreign
// accounts attached.
package main

import (
	"context"
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
	"github.com/idstack-io/scim-accounts/internal/link"
	"github.com/idstack-io/scim-accounts/internal/scim"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// GetRequest selects one account by exactly one of its unique
// attributes; the first non-empty field wins in the order listed.
type GetRequest struct {
	AccountID string `json:"accountId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	// IncludeLinks attaches the account's foreign links.
	IncludeLinks bool `json:"includeLinks,omitempty"`
}

// GetResponse carries the account when found.
type GetResponse struct {
	Found   bool            `json:"found"`
	Account scim.Attributes `json:"account,omitempty"`
}

// AccountReader is the slice of the account store this handler needs.
type AccountReader interface {
	GetByID(ctx context.Context, accountID string) (*account.Record, error)
	GetByUserName(ctx context.Context, userName string) (*account.Record, error)
	GetByEmail(ctx context.Context, email string) (*account.Record, error)
	GetByPhone(ctx context.Context, phone string) (*account.Record, error)
}

// LinkLister lists foreign links for a local account.
type LinkLister interface {
	List(ctx context.Context, localAccountID, manager string) ([]*link.Link, error)
}

type handler struct {
	accounts AccountReader
	links    LinkLister
}

func newHandler(accounts AccountReader, links LinkLister) *handler {
	return &handler{accounts: accounts, links: links}
}

func (h *handler) handle(ctx context.Context, request GetRequest) (GetResponse, error) {
	tracer := otel.Tracer("account-get")
	ctx, span := tracer.Start(ctx, "AccountGetHandler")
	defer span.End()

	record, err := h.lookup(ctx, request)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to get account",
			slog.String("error", err.Error()),
		)
		return GetResponse{}, err
	}
	if record == nil {
		return GetResponse{Found: false}, nil
	}

	attrs := record.ToSCIM()
	if request.IncludeLinks && h.links != nil {
		links, err := h.links.List(ctx, record.AccountID, "")
		if err != nil {
			logger.ErrorContext(ctx, "Failed to list links",
				slog.String("account_id", record.AccountID),
				slog.String("error", err.Error()),
			)
			return GetResponse{}, err
		}
		linked := make([]map[string]any, 0, len(links))
		for _, l := range links {
			linked = append(linked, map[string]any{
				"foreignKey":            l.ForeignKey,
				"linkingAccountManager": l.LinkingAccountManager,
			})
		}
		attrs[scim.AttrLinkedAccs] = linked
	}

	logger.InfoContext(ctx, "Account retrieved",
		slog.String("account_id", record.AccountID),
	)
	return GetResponse{Found: true, Account: attrs}, nil
}

func (h *handler) lookup(ctx context.Context, request GetRequest) (*account.Record, error) {
	switch {
	case request.AccountID != "":
		return h.accounts.GetByID(ctx, request.AccountID)
	case request.UserName != "":
		return h.accounts.GetByUserName(ctx, request.UserName)
	case request.Email != "":
		return h.accounts.GetByEmail(ctx, request.Email)
	case request.Phone != "":
		return h.accounts.GetByPhone(ctx, request.Phone)
	default:
		return nil, nil
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
	linksTable := os.Getenv("LINKS_TABLE_NAME")

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(cfg)
	accounts := account.NewStore(dynamoClient, accountsTable, account.Options{})
	links := link.NewStore(dynamoClient, linksTable)

	h := newHandler(accounts, links)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
