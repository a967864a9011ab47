package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/model"
)

type stubClient struct {
	resp    model.Response
	genErr  error
	embed   []float32
	embErr  error
	genHits int
	embHits int
}

func (s *stubClient) Generate(context.Context, model.Request) (model.Response, error) {
	s.genHits++
	if s.genErr != nil {
		return model.Response{}, s.genErr
	}
	return s.resp, nil
}

func (s *stubClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	if s.genErr != nil {
		return nil, s.genErr
	}
	return nil, model.ErrStreamingUnsupported
}

func (s *stubClient) Embed(ctx context.Context, _ string) ([]float32, error) {
	s.embHits++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.embErr != nil {
		return nil, s.embErr
	}
	return s.embed, nil
}

func TestGeneratePrimaryWins(t *testing.T) {
	primary := &stubClient{resp: model.Response{Text: "from primary"}}
	secondary := &stubClient{resp: model.Response{Text: "from secondary"}}
	c, err := New(Options{Primary: primary, Secondary: secondary})
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), model.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from primary", resp.Text)
	assert.Equal(t, 1, primary.genHits)
	assert.Zero(t, secondary.genHits)
}

func TestGenerateFallsBack(t *testing.T) {
	primary := &stubClient{genErr: errors.New("overloaded")}
	secondary := &stubClient{resp: model.Response{Text: "from secondary"}}
	c, err := New(Options{Primary: primary, Secondary: secondary})
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), model.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", resp.Text)
	assert.Equal(t, 1, primary.genHits)
	assert.Equal(t, 1, secondary.genHits)
}

func TestGenerateBothFail(t *testing.T) {
	primary := &stubClient{genErr: errors.New("primary down")}
	secondary := &stubClient{genErr: errors.New("secondary down")}
	c, err := New(Options{Primary: primary, Secondary: secondary})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), model.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary down")
	assert.Contains(t, err.Error(), "secondary down")
}

func TestGenerateSkipsFallbackWhenContextDone(t *testing.T) {
	primary := &stubClient{genErr: context.Canceled}
	secondary := &stubClient{resp: model.Response{Text: "never"}}
	c, err := New(Options{Primary: primary, Secondary: secondary})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Generate(ctx, model.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Zero(t, secondary.genHits)
}

func TestEmbedAlwaysUsesSecondary(t *testing.T) {
	primary := &stubClient{}
	secondary := &stubClient{embed: []float32{1, 2, 3}}
	c, err := New(Options{Primary: primary, Secondary: secondary})
	require.NoError(t, err)

	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Zero(t, primary.embHits)
	assert.Equal(t, 1, secondary.embHits)
}

func TestEmbedErrorSurfaces(t *testing.T) {
	secondary := &stubClient{embErr: errors.New("quota")}
	c, err := New(Options{Primary: &stubClient{}, Secondary: secondary})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Secondary: &stubClient{}})
	require.Error(t, err)
	_, err = New(Options{Primary: &stubClient{}})
	require.Error(t, err)
}
