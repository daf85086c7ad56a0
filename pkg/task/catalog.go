package task

import (
	"context"
	"iter"
	"maps"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/query"
)

type listFunc[T any] func(ctx context.Context, provider string, q query.Query) (api.Page[T], error)

// ListBuilder describes a catalog listing. Setters fill the unified query
// fields; the engine drops whatever the provider does not understand and
// reports it on the page.
type ListBuilder[T any] struct {
	provider string
	fields   query.Fields
	list     listFunc[T]
}

// ListModels starts a model listing.
func ListModels(r Runner, provider string) ListBuilder[api.ModelData] {
	return ListBuilder[api.ModelData]{provider: provider, list: r.ListModels}
}

// ListVoices starts a voice listing.
func ListVoices(r Runner, provider string) ListBuilder[api.VoiceData] {
	return ListBuilder[api.VoiceData]{provider: provider, list: r.ListVoices}
}

// ListFiles starts a file listing.
func ListFiles(r Runner, provider string) ListBuilder[api.UploadedFile] {
	return ListBuilder[api.UploadedFile]{provider: provider, list: r.ListFiles}
}

// Query replaces every field with those of q.
func (b ListBuilder[T]) Query(q query.Query) ListBuilder[T] {
	b.fields = query.Fields{}
	if q != nil {
		b.fields = q.Fields()
	}
	return b
}

func (b ListBuilder[T]) Limit(n int) ListBuilder[T] {
	b.fields.Limit = n
	return b
}

// PageSize is Limit under its token-paging name.
func (b ListBuilder[T]) PageSize(n int) ListBuilder[T] {
	return b.Limit(n)
}

func (b ListBuilder[T]) Order(o query.Order) ListBuilder[T] {
	b.fields.Order = o
	return b
}

// After continues after the element with the given id.
func (b ListBuilder[T]) After(id string) ListBuilder[T] {
	b.fields.After = id
	return b
}

// Before pages backwards from the element with the given id.
func (b ListBuilder[T]) Before(id string) ListBuilder[T] {
	b.fields.Before = id
	return b
}

func (b ListBuilder[T]) PageToken(token string) ListBuilder[T] {
	b.fields.PageToken = token
	return b
}

func (b ListBuilder[T]) IncludeArchived() ListBuilder[T] {
	b.fields.IncludeArchived = true
	return b
}

func (b ListBuilder[T]) Search(s string) ListBuilder[T] {
	b.fields.Search = s
	return b
}

// Sort orders by a provider field in the given direction.
func (b ListBuilder[T]) Sort(field string, dir query.Order) ListBuilder[T] {
	b.fields.Sort = field
	b.fields.SortDirection = dir
	return b
}

// Flag sets a provider-specific filter.
func (b ListBuilder[T]) Flag(name, value string) ListBuilder[T] {
	flags := maps.Clone(b.fields.Flags)
	if flags == nil {
		flags = make(map[string]string, 1)
	}
	flags[name] = value
	b.fields.Flags = flags
	return b
}

// Fields returns the query the builder describes.
func (b ListBuilder[T]) Fields() query.Fields {
	f := b.fields
	f.Flags = maps.Clone(b.fields.Flags)
	return f
}

// Execute fetches one page.
func (b ListBuilder[T]) Execute(ctx context.Context) (api.Page[T], error) {
	return b.list(ctx, b.provider, query.FieldsQuery(b.Fields()))
}

// Pages iterates from the configured position until the catalog is
// exhausted, threading the continuation token when the provider returns
// one and an element cursor otherwise. A walk started with Before keeps
// paging backwards. Iteration stops after
// the first error, and when ctx is done.
func (b ListBuilder[T]) Pages(ctx context.Context) iter.Seq2[api.Page[T], error] {
	return func(yield func(api.Page[T], error) bool) {
		cur := b
		for {
			if err := ctx.Err(); err != nil {
				yield(api.Page[T]{}, err)
				return
			}
			page, err := cur.Execute(ctx)
			if err != nil {
				yield(page, err)
				return
			}
			if !yield(page, nil) {
				return
			}

			next, ok := cur.continuation(page)
			if !ok {
				return
			}
			cur = next
		}
	}
}

// continuation returns the builder for the page after page. An opaque
// token is never turned into an element cursor or the reverse.
func (b ListBuilder[T]) continuation(page api.Page[T]) (ListBuilder[T], bool) {
	switch {
	case page.NextPageToken != "":
		if page.NextPageToken == b.fields.PageToken {
			return b, false
		}
		return b.PageToken(page.NextPageToken), true
	case page.HasMore && b.fields.Before != "" && len(page.Data) > 0:
		if page.FirstID == "" || page.FirstID == b.fields.Before {
			return b, false
		}
		return b.Before(page.FirstID), true
	case page.HasMore && page.LastID != "" && len(page.Data) > 0:
		if page.LastID == b.fields.After {
			return b, false
		}
		next := b.After(page.LastID)
		next.fields.Before = ""
		return next, true
	}
	return b, false
}

func (b ListBuilder[T]) run(ctx context.Context, _ any) (any, error) {
	return b.Execute(ctx)
}

// GetBuilder fetches one catalog entry.
type GetBuilder[T any] struct {
	provider string
	id       string
	get      func(ctx context.Context, provider, id string) (*T, error)
}

// GetModel fetches the model id from provider.
func GetModel(r Runner, provider, id string) GetBuilder[api.ModelData] {
	return GetBuilder[api.ModelData]{provider: provider, id: id, get: r.GetModel}
}

// GetVoice fetches one voice.
func GetVoice(r Runner, provider, id string) GetBuilder[api.VoiceData] {
	return GetBuilder[api.VoiceData]{provider: provider, id: id, get: r.GetVoice}
}

// GetFile fetches one uploaded file record.
func GetFile(r Runner, provider, id string) GetBuilder[api.UploadedFile] {
	return GetBuilder[api.UploadedFile]{provider: provider, id: id, get: r.GetFile}
}

// ID replaces the entry id.
func (b GetBuilder[T]) ID(id string) GetBuilder[T] {
	b.id = id
	return b
}

// Execute performs the lookup. Empty ids fail without a provider call.
func (b GetBuilder[T]) Execute(ctx context.Context) (*T, error) {
	return b.get(ctx, b.provider, b.id)
}

func (b GetBuilder[T]) run(ctx context.Context, _ any) (any, error) {
	return b.Execute(ctx)
}

// DeleteBuilder removes one catalog entry.
type DeleteBuilder struct {
	provider string
	id       string
	del      func(ctx context.Context, provider, id string) error
}

// DeleteModel removes a model. The provider's cached catalogs are dropped
// when it succeeds.
func DeleteModel(r Runner, provider, id string) DeleteBuilder {
	return DeleteBuilder{provider: provider, id: id, del: r.DeleteModel}
}

// DeleteVoice removes a voice.
func DeleteVoice(r Runner, provider, id string) DeleteBuilder {
	return DeleteBuilder{provider: provider, id: id, del: r.DeleteVoice}
}

// DeleteFile removes an uploaded file.
func DeleteFile(r Runner, provider, id string) DeleteBuilder {
	return DeleteBuilder{provider: provider, id: id, del: r.DeleteFile}
}

// ID replaces the entry id.
func (b DeleteBuilder) ID(id string) DeleteBuilder {
	b.id = id
	return b
}

// Execute performs the deletion.
func (b DeleteBuilder) Execute(ctx context.Context) error {
	return b.del(ctx, b.provider, b.id)
}

func (b DeleteBuilder) run(ctx context.Context, _ any) (any, error) {
	return nil, b.Execute(ctx)
}
