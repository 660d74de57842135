package bibliotheek

import (
	"context"
	"errors"
	"log/slog"

	"mijnbib/lib/textutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Accounts returns every library membership of the logged-in profile.
//
// On portals serving the json generation the counts arrive in separate
// per-membership activity documents; those are fetched here for every
// healthy account. Memberships the portal flags as broken keep their
// counts at -1 and skip the activity fetch.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	ctx, span := tracer.Start(ctx, "client:Accounts")
	defer span.End()

	body, err := c.Fetch(ctx, membershipsApiPath)
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		// older portals predate the my-library api
		body, err = c.Fetch(ctx, membershipsPagePath)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch memberships")
		return nil, err
	}

	accounts, err := ParseAccounts(body, c.BaseUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse memberships")
		return nil, err
	}

	for i := range accounts {
		account := &accounts[i]
		if account.Status != AccountOk {
			slog.WarnContext(ctx, "membership reports an error, skipping counts and amounts",
				"account", account.Id)
			continue
		}
		if account.LoansCount >= 0 {
			// html generation, the card itself carried the counts
			continue
		}
		activityBody, err := c.Fetch(ctx, "/api/my-library/"+account.Id+"/activities")
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch membership activity")
			return nil, err
		}
		activity, err := parseMembershipActivity(activityBody)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to parse membership activity")
			return nil, err
		}
		account.LoansCount = activity.NumberOfLoans
		account.HoldsCount = activity.NumberOfHolds
		amount, err := textutil.ParseEuroAmount(activity.OpenAmount)
		if err != nil {
			slog.WarnContext(ctx, "unreadable open amount", "account", account.Id, "amount", activity.OpenAmount)
		} else {
			account.OpenAmount = amount
		}
	}

	slog.DebugContext(ctx, "fetched memberships", "count", len(accounts))
	return accounts, nil
}

// Loans returns the active loans of one membership.
func (c *Client) Loans(ctx context.Context, accountId string) ([]Loan, error) {
	ctx, span := tracer.Start(ctx, "client:Loans")
	defer span.End()
	span.SetAttributes(attribute.String("account", accountId))

	body, err := c.Fetch(ctx, membershipPath(accountId, "uitleningen"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch loans")
		return nil, err
	}
	loans, err := ParseLoans(body, c.BaseUrl, accountId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse loans")
		return nil, err
	}
	slog.DebugContext(ctx, "fetched loans", "account", accountId, "count", len(loans))
	return loans, nil
}

// Reservations returns the open holds of one membership.
func (c *Client) Reservations(ctx context.Context, accountId string) ([]Reservation, error) {
	ctx, span := tracer.Start(ctx, "client:Reservations")
	defer span.End()
	span.SetAttributes(attribute.String("account", accountId))

	body, err := c.Fetch(ctx, membershipPath(accountId, "reservaties"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch holds")
		return nil, err
	}
	holds, err := ParseReservations(body, c.BaseUrl, accountId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse holds")
		return nil, err
	}
	slog.DebugContext(ctx, "fetched holds", "account", accountId, "count", len(holds))
	return holds, nil
}

// AllInfo returns every membership with its loans and holds, keyed by
// membership id. Accounts reporting zero loans or holds skip the
// respective page fetch; unknown counts (-1) are fetched anyway.
func (c *Client) AllInfo(ctx context.Context) (map[string]AccountInfo, error) {
	ctx, span := tracer.Start(ctx, "client:AllInfo")
	defer span.End()

	accounts, err := c.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	info := make(map[string]AccountInfo, len(accounts))
	for _, account := range accounts {
		entry := AccountInfo{Account: account}
		if account.LoansCount != 0 {
			entry.Loans, err = c.Loans(ctx, account.Id)
			if err != nil {
				return nil, err
			}
		}
		if account.HoldsCount != 0 {
			entry.Reservations, err = c.Reservations(ctx, account.Id)
			if err != nil {
				return nil, err
			}
		}
		info[account.Id] = entry
	}
	return info, nil
}
