package generate

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/iconset"
	"github.com/tphakala/iconforge/internal/imagegen"
)

type mockIconSets struct {
	mock.Mock
}

func (m *mockIconSets) GenerateWithProgress(ctx context.Context, req iconset.Request, userID string, progress iconset.ProgressFunc) (iconset.Result, error) {
	args := m.Called(ctx, req, userID)
	if progress != nil {
		for i := 0; i <= 2; i++ {
			progress(i, 2)
		}
	}
	return args.Get(0).(iconset.Result), args.Error(1)
}

type mockSingle struct {
	mock.Mock
}

func (m *mockSingle) GenerateAndSave(ctx context.Context, params imagegen.Params, userID string) (*datastore.ImageGeneration, error) {
	args := m.Called(ctx, params, userID)
	rec, _ := args.Get(0).(*datastore.ImageGeneration)
	return rec, args.Error(1)
}

func TestRunIconSet(t *testing.T) {
	gen := new(mockIconSets)
	gen.On("GenerateWithProgress", mock.Anything,
		iconset.Request{Prompt: "rocket", Style: "Cartoon", Colors: []string{"#FF0000"}}, "user-1").
		Return(iconset.Result{
			Prompt: "ONE single rocket icon only",
			Icons: []*datastore.ImageGeneration{
				{ID: "a", ImageURL: "https://replicate.delivery/a.png", GenerationTimeMs: 900},
				{ID: "b", ImageURL: "https://replicate.delivery/b.png", GenerationTimeMs: 1100},
			},
		}, nil)

	var out bytes.Buffer
	err := runIconSet(t.Context(), &out, gen, "rocket",
		&options{style: "Cartoon", colors: []string{"#FF0000"}, userID: "user-1"})
	require.NoError(t, err)
	gen.AssertExpectations(t)

	assert.Contains(t, out.String(), "Generating icon 1 of 2...")
	assert.Contains(t, out.String(), "Generating icon 2 of 2...")
	assert.NotContains(t, out.String(), "Generating icon 3 of 2")
	assert.Contains(t, out.String(), "Prompt: ONE single rocket icon only")
	assert.Contains(t, out.String(), "Icon 1: https://replicate.delivery/a.png")
	assert.Contains(t, out.String(), "Icon 2: https://replicate.delivery/b.png")
}

func TestRunIconSet_Error(t *testing.T) {
	gen := new(mockIconSets)
	gen.On("GenerateWithProgress", mock.Anything, mock.Anything, "").
		Return(iconset.Result{}, errors.ValidationError("Invalid style"))

	var out bytes.Buffer
	err := runIconSet(t.Context(), &out, gen, "rocket", &options{style: "Neon"})
	require.Error(t, err)
	assert.Equal(t, "Invalid style", err.Error())
	assert.NotContains(t, out.String(), "Icon 1")
}

func TestRunSingle(t *testing.T) {
	gen := new(mockSingle)
	want := imagegen.Params{
		Prompt:  "a red planet",
		Size:    imagegen.Size1792x1024,
		Quality: imagegen.QualityHD,
		Style:   imagegen.StyleNatural,
		N:       1,
	}
	gen.On("GenerateAndSave", mock.Anything, want, "").
		Return(&datastore.ImageGeneration{ID: "gen-1", ImageURL: "https://replicate.delivery/p.png", GenerationTimeMs: 1234}, nil)

	var out bytes.Buffer
	err := runSingle(t.Context(), &out, gen, "  a red planet ",
		&options{size: "1792x1024", quality: "hd", imageStyle: "natural"})
	require.NoError(t, err)
	gen.AssertExpectations(t)

	assert.Equal(t, "Image: https://replicate.delivery/p.png\nID: gen-1\nGeneration time: 1234 ms\n", out.String())
}
