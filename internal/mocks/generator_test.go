package mocks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/generation"
	"github.com/phrazzld/stockmeta/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGenerator(t *testing.T) {
	t.Parallel()

	t.Run("default metadata", func(t *testing.T) {
		t.Parallel()

		gen := mocks.NewMockGeneratorWithDefaultMetadata()
		req := generation.Request{Image: []byte{1}, MIMEType: "image/png", Context: "harbour"}

		first, err := gen.GenerateMetadata(context.Background(), req)
		require.NoError(t, err)
		first.Keywords[0] = "changed"

		second, err := gen.GenerateMetadata(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "harbour", second.Keywords[0], "results should not share memory")

		assert.Equal(t, 2, gen.CallCount())
		assert.Equal(t, "harbour", gen.Requests()[0].Context)

		gen.Reset()
		assert.Zero(t, gen.CallCount())
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		gen := mocks.MockGeneratorWithContentBlocked()
		result, err := gen.GenerateMetadata(context.Background(), generation.Request{})
		assert.ErrorIs(t, err, generation.ErrContentBlocked)
		assert.Nil(t, result)
	})

	t.Run("custom function wins", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		gen := &mocks.MockGenerator{
			Metadata: &domain.Metadata{Title: "unused"},
			GenerateMetadataFn: func(context.Context, generation.Request) (*domain.Metadata, error) {
				return nil, boom
			},
		}
		_, err := gen.GenerateMetadata(context.Background(), generation.Request{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("blocks until cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := mocks.MockGeneratorThatBlocks().GenerateMetadata(ctx, generation.Request{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
