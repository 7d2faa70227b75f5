package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/port"
)

// ErrStaleRequest means a newer lookup from the same client superseded this one.
var ErrStaleRequest = errors.New("superseded by a newer request")

const (
	// minQueryLen keeps single keystrokes from hitting TVMaze.
	minQueryLen = 2
	// lookupTimeout bounds a shared lookup once no caller context governs it.
	lookupTimeout = 30 * time.Second
)

// Lookup is the combined result of a metadata search.
type Lookup struct {
	Shows []domain.ShowMetadata
	Video *domain.VideoMetadata
}

type MetadataService struct {
	backend  port.JobBackend
	inflight singleflight.Group
	seqs     *KeyedSequence
	validate *validator.Validate
	log      zerolog.Logger
}

func NewMetadataService(backend port.JobBackend) *MetadataService {
	return &MetadataService{
		backend:  backend,
		seqs:     NewKeyedSequence(),
		validate: validator.New(),
		log:      logger.WithComponent("metadata"),
	}
}

// SearchShows queries TVMaze through the backend. Identical queries that
// overlap in time share one backend call.
func (s *MetadataService) SearchShows(ctx context.Context, query string) ([]domain.ShowMetadata, error) {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if len([]rune(q)) < minQueryLen {
		return nil, nil
	}

	v, shared, err := s.shared(ctx, "tvmaze:"+q, func(ctx context.Context) (any, error) {
		return s.backend.SearchShows(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug().Str("query", logger.Sanitize(q)).Msg("shared in-flight show search")
	}
	return v.([]domain.ShowMetadata), nil
}

func (s *MetadataService) LookupVideo(ctx context.Context, url string) (*domain.VideoMetadata, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, nil
	}

	v, _, err := s.shared(ctx, "youtube:"+url, func(ctx context.Context) (any, error) {
		return s.backend.LookupVideo(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.VideoMetadata), nil
}

// shared runs fn once for overlapping callers with the same key. fn gets a
// context detached from the caller that started it, so that caller leaving
// does not fail the others. Each caller stops waiting when its own ctx ends.
func (s *MetadataService) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	ch := s.inflight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return fn(fctx)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}

// Search runs the show and video lookups concurrently for one client.
// When the same client issued another search in the meantime the result
// is dropped with ErrStaleRequest.
func (s *MetadataService) Search(ctx context.Context, client, query, url string) (*Lookup, error) {
	seq := s.seqs.For(client)
	id := seq.Next()

	var out Lookup
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		shows, err := s.SearchShows(gctx, query)
		out.Shows = shows
		return err
	})
	g.Go(func() error {
		video, err := s.LookupVideo(gctx, url)
		out.Video = video
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !seq.IsLatest(id) || !seq.Apply(id) {
		return nil, ErrStaleRequest
	}
	return &out, nil
}

func (s *MetadataService) Update(ctx context.Context, jobID string, update *domain.MetadataUpdate) error {
	update.Title = strings.TrimSpace(update.Title)
	update.ShowName = strings.TrimSpace(update.ShowName)
	if err := s.validate.Struct(update); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "Title":
				return &FormError{Field: "title", Message: "Enter a title of at most 200 characters."}
			default:
				return &FormError{Field: strings.ToLower(verrs[0].Field()), Message: "Season and episode must not be negative."}
			}
		}
		return err
	}
	return s.backend.UpdateMetadata(ctx, jobID, update)
}
