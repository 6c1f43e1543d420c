package retrypolicy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetangstr/vehiclesearch/domain"
)

func TestCalculator_CapsAtMaxDelay(t *testing.T) {
	c := NewCalculator(Policy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   3.0,
	})
	for i := 0; i < 5; i++ {
		d := c.NextDelay()
		assert.LessOrEqual(t, d, 300*time.Millisecond+75*time.Millisecond) // cap plus max jitter
	}
	assert.Equal(t, 5, c.Attempts())
}

func TestCalculator_Reset(t *testing.T) {
	c := NewCalculator(DefaultPolicy())
	c.NextDelay()
	c.NextDelay()
	c.Reset()
	assert.Equal(t, 0, c.Attempts())
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return domain.NewAdapterError("ebay", "search", domain.ErrKindTransient, errors.New("timeout"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_DoesNotRetryPermanent(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		attempts++
		return domain.NewAdapterError("ebay", "search", domain.ErrKindValidation, errors.New("bad request"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}, func(ctx context.Context) error {
		attempts++
		return domain.NewAdapterError("ebay", "search", domain.ErrKindTransient, errors.New("down"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_RespectsContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Do(ctx, Policy{
		MaxAttempts:  10,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   1,
	}, func(ctx context.Context) error {
		attempts++
		return domain.NewAdapterError("ebay", "search", domain.ErrKindTransient, errors.New("down"))
	})
	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 2)
}
