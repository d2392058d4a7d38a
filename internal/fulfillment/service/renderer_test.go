package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func sampleDetail() *ticketdomain.Detail {
	detail := &ticketdomain.Detail{
		EventID:       42,
		EventName:     "Summit",
		EventLocation: "Main Hall",
		EventCity:     "Recife",
		EventStartAt:  time.Date(2026, 7, 1, 19, 0, 0, 0, time.UTC),
		ClassName:     "General",
	}
	detail.ID = 7
	detail.QRCode = "3f0c2b9e-5a8d-4c59-8b8e-1d2a4c6f9e10"
	detail.HolderName = "Ana"
	return detail
}

func TestRendererCachesQRImage(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	store := cache.NewMemoryStore(fake)
	pdfs := &fakePDF{}
	r := NewRenderer(RendererParams{
		Log:    zap.NewNop(),
		Store:  store,
		PDF:    pdfs,
		Tuning: config.NewStaticTuning(config.DefaultTuning()),
	})
	ctx := context.Background()
	detail := sampleDetail()

	out, err := r.Render(ctx, detail)
	require.NoError(t, err)
	assert.Contains(t, string(out), detail.QRCode)

	cached, ok, err := store.Get(ctx, "qr_42_"+detail.QRCode)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, cached[:4])

	fake.Advance(2 * time.Hour)
	_, ok, err = store.Get(ctx, "qr_42_"+detail.QRCode)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRendererFallsBackWhenCacheFails(t *testing.T) {
	r := NewRenderer(RendererParams{
		Log:    zap.NewNop(),
		Store:  brokenStore{},
		PDF:    &fakePDF{},
		Tuning: config.NewStaticTuning(config.DefaultTuning()),
	})

	out, err := r.Render(context.Background(), sampleDetail())
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestLocationJoinsVenueAndCity(t *testing.T) {
	assert.Equal(t, "Main Hall, Recife", location(sampleDetail()))
	assert.Equal(t, "", location(&ticketdomain.Detail{}))
}
