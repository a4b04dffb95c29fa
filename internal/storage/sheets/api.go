package sheets

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// valuesAPI is the subset of the Sheets values API the store needs
type valuesAPI interface {
	get(ctx context.Context, rng string) ([][]any, error)
	update(ctx context.Context, rng string, rows [][]any) error
	append(ctx context.Context, rng string, rows [][]any) (string, error)
	batchUpdate(ctx context.Context, data []*gsheets.ValueRange) error
}

type serviceAPI struct {
	srv           *gsheets.Service
	spreadsheetID string
}

func newServiceAPI(ctx context.Context, credentialsFile, spreadsheetID string) (*serviceAPI, error) {
	srv, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, err
	}
	return &serviceAPI{srv: srv, spreadsheetID: spreadsheetID}, nil
}

func (a *serviceAPI) get(ctx context.Context, rng string) ([][]any, error) {
	var rows [][]any
	err := retry(ctx, func() error {
		resp, err := a.srv.Spreadsheets.Values.Get(a.spreadsheetID, rng).
			ValueRenderOption("UNFORMATTED_VALUE").
			Context(ctx).Do()
		if err != nil {
			return err
		}
		rows = resp.Values
		return nil
	})
	return rows, err
}

func (a *serviceAPI) update(ctx context.Context, rng string, rows [][]any) error {
	return retry(ctx, func() error {
		_, err := a.srv.Spreadsheets.Values.Update(a.spreadsheetID, rng, &gsheets.ValueRange{Values: rows}).
			ValueInputOption("RAW").
			Context(ctx).Do()
		return err
	})
}

func (a *serviceAPI) append(ctx context.Context, rng string, rows [][]any) (string, error) {
	var updated string
	err := retry(ctx, func() error {
		resp, err := a.srv.Spreadsheets.Values.Append(a.spreadsheetID, rng, &gsheets.ValueRange{Values: rows}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return err
		}
		if resp.Updates != nil {
			updated = resp.Updates.UpdatedRange
		}
		return nil
	})
	return updated, err
}

func (a *serviceAPI) batchUpdate(ctx context.Context, data []*gsheets.ValueRange) error {
	return retry(ctx, func() error {
		_, err := a.srv.Spreadsheets.Values.BatchUpdate(a.spreadsheetID, &gsheets.BatchUpdateValuesRequest{
			ValueInputOption: "RAW",
			Data:             data,
		}).Context(ctx).Do()
		return err
	})
}

// retry repeats quota and server errors with exponential back-off
func retry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	b.Multiplier = 2
	b.RandomizationFactor = 0.1

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && (gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retryIn", wait).Msg("sheets request throttled, retrying")
	})
}
