package adapter

import (
	"context"

	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/pkg/google"
	"github.com/foundry-bot/partner-research/pkg/jina"
	"github.com/foundry-bot/partner-research/pkg/wikipedia"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// searchReply pairs one canned Search outcome with its position in the
// call sequence.
type searchReply struct {
	resp *jina.SearchResponse
	err  error
}

// fakeSearch answers Jina searches from a queue, one reply per call.
// Once the queue drains it keeps returning empty result sets.
type fakeSearch struct {
	replies []searchReply
	calls   []string
}

func (f *fakeSearch) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	return nil, nil
}

func (f *fakeSearch) Search(_ context.Context, query string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	f.calls = append(f.calls, query)
	if len(f.replies) == 0 {
		return &jina.SearchResponse{Code: 200}, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	if reply.err != nil {
		return nil, reply.err
	}
	return reply.resp, nil
}

type fakeGoogle struct {
	resp  *google.SearchResponse
	err   error
	calls []string
}

func (f *fakeGoogle) Search(_ context.Context, query string, _ ...google.SearchOption) (*google.SearchResponse, error) {
	f.calls = append(f.calls, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeWiki struct {
	pages map[string]*wikipedia.Page
	err   error
}

func (f *fakeWiki) Summary(_ context.Context, title string) (*wikipedia.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	if page, ok := f.pages[title]; ok {
		return page, nil
	}
	return nil, wikipedia.ErrNotFound
}

func (f *fakeWiki) Search(_ context.Context, _ string) ([]wikipedia.SearchHit, error) {
	return nil, nil
}
