package engine

import (
	"context"
	"strings"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/cache"
	"github.com/rhuss/unigen/pkg/provider"
	"github.com/rhuss/unigen/pkg/query"
)

// GetModel fetches one model.
func (e *Engine) GetModel(ctx context.Context, providerName, id string) (*api.ModelData, error) {
	return getItem(ctx, e, providerName, provider.OpGetModel, provider.ResourceModels, id, e.models,
		func(ctx context.Context, p provider.Provider) (*api.ModelData, error) {
			return p.(provider.ModelGetter).GetModel(ctx, id)
		})
}

// ListModels lists one page of the model catalog.
func (e *Engine) ListModels(ctx context.Context, providerName string, q query.Query) (api.Page[api.ModelData], error) {
	return listPage(ctx, e, providerName, provider.OpListModels, provider.ResourceModels, q, e.modelPages,
		func(ctx context.Context, p provider.Provider) (api.Page[api.ModelData], error) {
			return p.(provider.ModelLister).ListModels(ctx, q)
		})
}

// DeleteModel removes a model and drops the provider's cached catalogs.
func (e *Engine) DeleteModel(ctx context.Context, providerName, id string) error {
	return deleteItem(ctx, e, providerName, provider.OpDeleteModel, id,
		func(ctx context.Context, p provider.Provider) error {
			return p.(provider.ModelDeleter).DeleteModel(ctx, id)
		})
}

// GetVoice fetches one voice.
func (e *Engine) GetVoice(ctx context.Context, providerName, id string) (*api.VoiceData, error) {
	return getItem(ctx, e, providerName, provider.OpGetVoice, provider.ResourceVoices, id, e.voices,
		func(ctx context.Context, p provider.Provider) (*api.VoiceData, error) {
			return p.(provider.VoiceGetter).GetVoice(ctx, id)
		})
}

// ListVoices lists one page of the voice catalog.
func (e *Engine) ListVoices(ctx context.Context, providerName string, q query.Query) (api.Page[api.VoiceData], error) {
	return listPage(ctx, e, providerName, provider.OpListVoices, provider.ResourceVoices, q, e.voicePages,
		func(ctx context.Context, p provider.Provider) (api.Page[api.VoiceData], error) {
			return p.(provider.VoiceLister).ListVoices(ctx, q)
		})
}

// DeleteVoice removes a voice and drops the provider's cached catalogs.
func (e *Engine) DeleteVoice(ctx context.Context, providerName, id string) error {
	return deleteItem(ctx, e, providerName, provider.OpDeleteVoice, id,
		func(ctx context.Context, p provider.Provider) error {
			return p.(provider.VoiceDeleter).DeleteVoice(ctx, id)
		})
}

// GetFile fetches one uploaded file record.
func (e *Engine) GetFile(ctx context.Context, providerName, id string) (*api.UploadedFile, error) {
	return getItem(ctx, e, providerName, provider.OpGetFile, provider.ResourceFiles, id, e.files,
		func(ctx context.Context, p provider.Provider) (*api.UploadedFile, error) {
			return p.(provider.FileGetter).GetFile(ctx, id)
		})
}

// ListFiles lists one page of uploaded files.
func (e *Engine) ListFiles(ctx context.Context, providerName string, q query.Query) (api.Page[api.UploadedFile], error) {
	return listPage(ctx, e, providerName, provider.OpListFiles, provider.ResourceFiles, q, e.filePages,
		func(ctx context.Context, p provider.Provider) (api.Page[api.UploadedFile], error) {
			return p.(provider.FileLister).ListFiles(ctx, q)
		})
}

// DeleteFile removes an uploaded file and drops the provider's cached catalogs.
func (e *Engine) DeleteFile(ctx context.Context, providerName, id string) error {
	return deleteItem(ctx, e, providerName, provider.OpDeleteFile, id,
		func(ctx context.Context, p provider.Provider) error {
			return p.(provider.FileDeleter).DeleteFile(ctx, id)
		})
}

func validateID(id string) *api.APIError {
	if strings.TrimSpace(id) == "" {
		return api.NewInvalidRequestError("id", "id is required")
	}
	return nil
}

func getItem[T any](ctx context.Context, e *Engine, name string, op provider.Operation, res provider.Resource,
	id string, c *cache.Cache[T], fetch func(context.Context, provider.Provider) (*T, error)) (*T, error) {
	p, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	if apiErr := validateID(id); apiErr != nil {
		return nil, apiErr.WithContext(p.Name(), string(op))
	}
	if err := e.admit(ctx, p, op); err != nil {
		return nil, err
	}

	key := cache.ItemKey(ctx, p.Name(), string(res), id)
	v, err := c.GetOrLoad(ctx, key, func(ctx context.Context) (T, error) {
		item, err := call(ctx, e, p, op, func(ctx context.Context) (*T, error) {
			return fetch(ctx, p)
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return *item, nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func listPage[T any](ctx context.Context, e *Engine, name string, op provider.Operation, res provider.Resource,
	q query.Query, c *cache.Cache[api.Page[T]], fetch func(context.Context, provider.Provider) (api.Page[T], error)) (api.Page[T], error) {
	p, err := e.resolve(name)
	if err != nil {
		return api.Page[T]{}, err
	}
	// Normalizing up front rejects malformed queries without a round trip.
	if _, err := query.Normalize(p.Profile(res), q); err != nil {
		return api.Page[T]{}, annotate(err, p.Name(), op)
	}
	if err := e.admit(ctx, p, op); err != nil {
		return api.Page[T]{}, err
	}

	key := cache.NewKey(ctx, p.Name(), string(res), q)
	return c.GetOrLoad(ctx, key, func(ctx context.Context) (api.Page[T], error) {
		return call(ctx, e, p, op, func(ctx context.Context) (api.Page[T], error) {
			return fetch(ctx, p)
		})
	})
}

func deleteItem(ctx context.Context, e *Engine, name string, op provider.Operation, id string,
	remove func(context.Context, provider.Provider) error) error {
	p, err := e.resolve(name)
	if err != nil {
		return err
	}
	if apiErr := validateID(id); apiErr != nil {
		return apiErr.WithContext(p.Name(), string(op))
	}
	if err := e.admit(ctx, p, op); err != nil {
		return err
	}

	_, err = call(ctx, e, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, remove(ctx, p)
	})
	if err == nil {
		e.InvalidateProvider(ctx, p.Name())
	}
	return err
}
